// Package models provides the study-assistant domain types shared by the API client and the
// gateway service.
//
// JSON tags follow the upstream API exactly, including its mix of camelCase and snake_case.
package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Role is the user's role in a course.
type Role string

const (
	RoleStudent    Role = "STUDENT"
	RoleInstructor Role = "INSTRUCTOR"
)

// CourseRecord is a course as listed by the upstream API.
type CourseRecord struct {
	ID         string `json:"id"`
	CourseCode string `json:"courseCode"`
	Name       string `json:"name"`
}

// Course is a course annotated with the user's role and availability.
type Course struct {
	ID          string `json:"id"`
	CourseCode  string `json:"courseCode"`
	Name        string `json:"name"`
	Role        Role   `json:"userCourseRole"`
	IsAvailable bool   `json:"isAvailable"`
}

// ClassifyGroup derives role and availability from a course group key such as
// "availableCoursesAsStudent" or "unavailableCoursesAsInstructor".
func ClassifyGroup(key string) (Role, bool) {
	role := RoleInstructor
	if strings.Contains(key, "AsStudent") {
		role = RoleStudent
	}
	return role, !strings.Contains(key, "unavailable")
}

// ParseCourseGroups flattens the upstream courses object into a list. Groups and the courses
// within them keep the order in which they appear in the response.
func ParseCourseGroups(data []byte) ([]Course, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to read courses: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("courses response must be a JSON object")
	}

	courses := make([]Course, 0)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to read course group: %w", err)
		}
		key, _ := tok.(string)

		var records []CourseRecord
		if err := dec.Decode(&records); err != nil {
			return nil, fmt.Errorf("failed to decode course group %q: %w", key, err)
		}

		role, available := ClassifyGroup(key)
		for _, r := range records {
			courses = append(courses, Course{
				ID:          r.ID,
				CourseCode:  r.CourseCode,
				Name:        r.Name,
				Role:        role,
				IsAvailable: available,
			})
		}
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("failed to read courses: %w", err)
	}
	return courses, nil
}

// UserInfo is the signed-in user's profile.
type UserInfo struct {
	UserID            string `json:"userId"`
	UserName          string `json:"userName"`
	PreferredLanguage string `json:"preferred_language"`
}

// Language is a supported assistant language.
type Language struct {
	Code        string `json:"code"`
	DisplayName string `json:"displayName"`
}

// SupportedLanguages lists the languages the assistant can answer in.
var SupportedLanguages = []Language{
	{Code: "en", DisplayName: "English"},
	{Code: "zh", DisplayName: "Chinese (Simplified)"},
	{Code: "zh-TW", DisplayName: "Chinese (Traditional)"},
	{Code: "fr", DisplayName: "French"},
	{Code: "fr-CA", DisplayName: "French (Canada)"},
	{Code: "de", DisplayName: "German"},
	{Code: "ru", DisplayName: "Russian"},
	{Code: "es", DisplayName: "Spanish"},
}

// IsSupportedLanguage reports whether code is in SupportedLanguages.
func IsSupportedLanguage(code string) bool {
	for _, l := range SupportedLanguages {
		if l.Code == code {
			return true
		}
	}
	return false
}
