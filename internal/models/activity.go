package models

import (
	"time"

	"github.com/lib/pq"
)

// ActivityCategory enumerates the supported achievement categories.
type ActivityCategory string

const (
	CategoryConferences      ActivityCategory = "conferences"
	CategoryCertifications   ActivityCategory = "certifications"
	CategoryClubActivities   ActivityCategory = "club_activities"
	CategoryInternships      ActivityCategory = "internships"
	CategoryCommunityService ActivityCategory = "community_service"
	CategoryCompetitions     ActivityCategory = "competitions"
)

// Valid reports whether the category is one of the known values.
func (c ActivityCategory) Valid() bool {
	switch c {
	case CategoryConferences, CategoryCertifications, CategoryClubActivities,
		CategoryInternships, CategoryCommunityService, CategoryCompetitions:
		return true
	default:
		return false
	}
}

// Activity is an achievement claimed by a student.
type Activity struct {
	ID            string           `db:"id" json:"id"`
	StudentID     string           `db:"student_id" json:"studentId"`
	InstitutionID *string          `db:"institution_id" json:"institutionId,omitempty"`
	Category      ActivityCategory `db:"category" json:"category"`
	Title         string           `db:"title" json:"title"`
	Description   string           `db:"description" json:"description"`
	Type          string           `db:"type" json:"type"`
	ActivityDate  time.Time        `db:"activity_date" json:"activityDate"`
	Duration      *string          `db:"duration" json:"duration,omitempty"`
	Location      *string          `db:"location" json:"location,omitempty"`
	Organization  *string          `db:"organization" json:"organization,omitempty"`
	Participants  *int             `db:"participants" json:"participants,omitempty"`
	Rank          *string          `db:"rank" json:"rank,omitempty"`
	Skills        pq.StringArray   `db:"skills" json:"skills,omitempty"`
	CreatedAt     time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updatedAt"`
}
