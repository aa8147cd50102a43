package models

// IncludedCourseContent selects which course areas the assistant may draw on.
type IncludedCourseContent struct {
	Home          bool `json:"HOME"`
	Announcements bool `json:"ANNOUNCEMENTS"`
	Syllabus      bool `json:"SYLLABUS"`
	Assignments   bool `json:"ASSIGNMENTS"`
	Modules       bool `json:"MODULES"`
	Files         bool `json:"FILES"`
	Quizzes       bool `json:"QUIZZES"`
	Discussions   bool `json:"DISCUSSIONS"`
	Pages         bool `json:"PAGES"`
}

// SupportedQuestions selects which kinds of questions the assistant answers.
type SupportedQuestions struct {
	Recommendations  bool `json:"RECOMMENDATIONS"`
	PracticeProblems bool `json:"PRACTICE_PROBLEMS"`
	SolutionReview   bool `json:"SOLUTION_REVIEW"`
	Explanation      bool `json:"EXPLANATION"`
}

// CourseConfiguration is the instructor-controlled assistant behavior for a course.
type CourseConfiguration struct {
	StudentAccessEnabled          bool                  `json:"studentAccessEnabled"`
	SelectedIncludedCourseContent IncludedCourseContent `json:"selectedIncludedCourseContent"`
	SelectedSupportedQuestions    SupportedQuestions    `json:"selectedSupportedQuestions"`
	CustomResponseFormat          string                `json:"customResponseFormat"`
	SystemPrompt                  string                `json:"systemPrompt,omitempty"`
	MaterialLastUpdatedTime       string                `json:"materialLastUpdatedTime,omitempty"`
	AutoUpdateOn                  bool                  `json:"autoUpdateOn"`
}

// UpdateCourseConfigurationRequest is the PUT body: the configuration plus its course.
type UpdateCourseConfigurationRequest struct {
	Course string `json:"course"`
	CourseConfiguration
}
