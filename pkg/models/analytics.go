package models

import (
	"fmt"
	"strings"
)

// Timeframe is an analytics reporting period.
type Timeframe string

const (
	TimeframeWeek  Timeframe = "WEEK"
	TimeframeMonth Timeframe = "MONTH"
	TimeframeTerm  Timeframe = "TERM"
)

// ParseTimeframe accepts WEEK, MONTH or TERM, case-insensitively.
func ParseTimeframe(s string) (Timeframe, error) {
	switch tf := Timeframe(strings.ToUpper(strings.TrimSpace(s))); tf {
	case TimeframeWeek, TimeframeMonth, TimeframeTerm:
		return tf, nil
	default:
		return "", fmt.Errorf("invalid period %q: must be WEEK, MONTH, or TERM", s)
	}
}

// Valid reports whether t is a known timeframe.
func (t Timeframe) Valid() bool {
	switch t {
	case TimeframeWeek, TimeframeMonth, TimeframeTerm:
		return true
	}
	return false
}

// Material is a frequently referenced course material.
type Material struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}

// StudentEngagement summarizes assistant usage in a course.
type StudentEngagement struct {
	QuestionsAsked  int `json:"questionsAsked"`
	StudentSessions int `json:"studentSessions"`
	UniqueStudents  int `json:"uniqueStudents"`
}

// CourseMaterial is a document indexed for a course.
type CourseMaterial struct {
	DocumentName string `json:"document_name"`
	SourceURL    string `json:"source_url"`
}
