package models

// Team represents a basketball team in the system
type Team struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Description *string    `json:"description,omitempty" yaml:"description,omitempty"`
	FoundedYear *int       `json:"founded_year,omitempty" yaml:"founded_year,omitempty"`
	HomeVenue   *string    `json:"home_venue,omitempty" yaml:"home_venue,omitempty"`
	Colors      TeamColors `json:"colors" yaml:"colors"`
	CoachID     *string    `json:"coach_id,omitempty" yaml:"coach_id,omitempty"`
	Stats       TeamRecord `json:"stats" yaml:"stats"`
	IsActive    bool       `json:"is_active" yaml:"is_active"`
}

// TeamColors holds the primary and secondary display colors of a team
type TeamColors struct {
	Primary   string `json:"primary" yaml:"primary"`
	Secondary string `json:"secondary" yaml:"secondary"`
}

// TeamRecord is the win/loss record of a team
type TeamRecord struct {
	Wins   int `json:"wins" yaml:"wins"`
	Losses int `json:"losses" yaml:"losses"`
}

// WinPercentage returns wins over games played, 0 when no games were played
func (r TeamRecord) WinPercentage() float64 {
	played := r.Wins + r.Losses
	if played == 0 {
		return 0
	}
	return float64(r.Wins) / float64(played)
}
