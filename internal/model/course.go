package model

import "time"

// Course is one catalog entry. Lectures are loaded only for the
// subscriber-only detail view; list responses carry the count instead.
type Course struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Category         string    `json:"category"`
	Thumbnail        Asset     `json:"thumbnail"`
	Lectures         []Lecture `json:"lectures,omitempty"`
	NumberOfLectures int       `json:"numberOfLectures"`
	CreatedBy        string    `json:"createdBy"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Lecture is a media item nested under a course.
type Lecture struct {
	ID          string    `json:"id"`
	CourseID    string    `json:"-"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Media       Asset     `json:"media"`
	CreatedAt   time.Time `json:"createdAt"`
}
