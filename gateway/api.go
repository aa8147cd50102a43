package gateway

import (
	"context"
	"errors"
	"strings"

	"aceit.app/pkg/logging"
	"aceit.app/pkg/middleware"
	"aceit.app/pkg/models"
	"aceit.app/pkg/pubsub"
	"aceit.app/pkg/studyapi"
)

// defaultRankingSize is used when a ranking request does not say how many items it wants.
const defaultRankingSize = 5

// Request and response types for API endpoints.

// AuthParams carries the session's access token.
type AuthParams struct {
	Authorization string `header:"Authorization"`
}

type TokenParams struct {
	// Authorization is the OAuth code on log-in and the refresh token on refresh.
	Authorization string `header:"Authorization"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

type AuthorizeURLResponse struct {
	URL string `json:"url"`
}

type CoursesResponse struct {
	Courses []models.Course `json:"courses"`
}

type LanguagesResponse struct {
	Languages []models.Language `json:"languages"`
}

type UpdateLanguageParams struct {
	Authorization     string `header:"Authorization"`
	PreferredLanguage string `json:"preferred_language"`
}

type SendMessageParams struct {
	Authorization  string `header:"Authorization"`
	Course         string `json:"course"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
	Language       string `json:"language"`
}

type CourseParams struct {
	Authorization string `header:"Authorization"`
	Course        string `query:"course"`
}

type SessionsResponse struct {
	Sessions []models.ConversationSession `json:"sessions"`
}

type RestoreSessionParams struct {
	Authorization  string `header:"Authorization"`
	ConversationID string `query:"conversation_id"`
}

type RankingParams struct {
	Authorization string `header:"Authorization"`
	Course        string `query:"course"`
	Num           int    `query:"num"`
	Period        string `query:"period"`
}

type EngagementParams struct {
	Authorization string `header:"Authorization"`
	Course        string `query:"course"`
	Period        string `query:"period"`
}

type QuestionsResponse struct {
	Questions []string `json:"questions"`
}

type MaterialsResponse struct {
	Materials []models.Material `json:"materials"`
}

type UpdateConfigParams struct {
	Authorization string                     `header:"Authorization"`
	Course        string                     `json:"course"`
	Configuration models.CourseConfiguration `json:"configuration"`
}

type CourseMaterialsResponse struct {
	Materials []models.CourseMaterial `json:"materials"`
}

type SuggestionsParams struct {
	Authorization string `header:"Authorization"`
	Course        string `query:"course"`
	NumSuggests   int    `query:"num_suggests"`
}

type SuggestionsResponse struct {
	Suggestions []string `json:"suggestions"`
}

type RefreshContentParams struct {
	Authorization string `header:"Authorization"`
	Course        string `json:"course"`
}

type MetricsResponse struct {
	Registry    RegistryStats    `json:"registry"`
	RateLimit   middleware.Stats `json:"rate_limit"`
	Requests    int64            `json:"requests"`
	Failures    int64            `json:"failures"`
	Canceled    int64            `json:"canceled"`
	Throttled   int64            `json:"throttled"`
	Resets      int64            `json:"resets"`
	SweptIdle   int64            `json:"swept_idle"`
	EventErrors int64            `json:"event_errors"`
}

func requireCourse(course string) error {
	if strings.TrimSpace(course) == "" {
		return invalidArgument("course is required")
	}
	return nil
}

func parsePeriod(period string) (models.Timeframe, error) {
	tf, err := models.ParseTimeframe(period)
	if err != nil {
		return "", invalidArgument(err.Error())
	}
	return tf, nil
}

// General

// Login exchanges an OAuth code for tokens and opens a session for the new access token.
//
//encore:api public method=POST path=/ui/general/log-in
func Login(ctx context.Context, p *TokenParams) (*TokenResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.Login(ctx, p)
}

func (s *Service) Login(ctx context.Context, p *TokenParams) (*TokenResponse, error) {
	if p.Authorization == "" {
		return nil, invalidArgument("authorization code is required")
	}
	client := studyapi.New(s.config.API, studyapi.WithClock(s.clock))
	tokens, err := client.Login(ctx, p.Authorization)
	if err != nil {
		return nil, s.observe(err)
	}
	return s.openSession(tokens), nil
}

// RefreshToken trades a refresh token for new tokens and opens a session for them.
// The request carries no access token, so the previous session is left to the idle sweep.
//
//encore:api public method=POST path=/ui/general/refresh-token
func RefreshToken(ctx context.Context, p *TokenParams) (*TokenResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.RefreshToken(ctx, p)
}

func (s *Service) RefreshToken(ctx context.Context, p *TokenParams) (*TokenResponse, error) {
	if p.Authorization == "" {
		return nil, invalidArgument("refresh token is required")
	}
	client := studyapi.New(s.config.API, studyapi.WithClock(s.clock))
	tokens, err := client.RefreshToken(ctx, p.Authorization)
	if err != nil {
		return nil, s.observe(err)
	}
	return s.openSession(tokens), nil
}

func (s *Service) openSession(tokens *studyapi.TokenSet) *TokenResponse {
	s.sessions.Get(tokens.AccessToken)
	return &TokenResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresIn:    tokens.ExpiresIn,
	}
}

// AuthorizeURL returns the LMS page that starts the sign-in flow.
//
//encore:api public method=GET path=/ui/general/authorize-url
func AuthorizeURL(ctx context.Context) (*AuthorizeURLResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return &AuthorizeURLResponse{URL: studyapi.AuthorizeURL(svc.config.API)}, nil
}

// Logout ends the caller's session on every instance.
//
//encore:api public method=POST path=/ui/general/logout
func Logout(ctx context.Context, p *AuthParams) error {
	if svc == nil {
		return errors.New("service not initialized")
	}
	return svc.Logout(ctx, p)
}

func (s *Service) Logout(ctx context.Context, p *AuthParams) error {
	if p.Authorization == "" {
		return toAPIError(studyapi.ErrNoAccessToken)
	}
	ctx, _ = logging.EnsureRequestID(ctx)
	s.resetSession(ctx, pubsub.SessionID(p.Authorization), pubsub.ReasonLogout)
	return nil
}

// Bootstrap returns the user profile and course list in one call.
//
//encore:api public method=GET path=/ui/general/bootstrap
func Bootstrap(ctx context.Context, p *AuthParams) (*studyapi.Session, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.Bootstrap(ctx, p)
}

func (s *Service) Bootstrap(ctx context.Context, p *AuthParams) (*studyapi.Session, error) {
	client, err := s.session(p.Authorization)
	if err != nil {
		return nil, err
	}
	session, err := client.Bootstrap(ctx)
	if err != nil {
		return nil, s.observe(err)
	}
	return session, nil
}

//encore:api public method=GET path=/ui/general/user
func UserInfo(ctx context.Context, p *AuthParams) (*models.UserInfo, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.UserInfo(ctx, p)
}

func (s *Service) UserInfo(ctx context.Context, p *AuthParams) (*models.UserInfo, error) {
	client, err := s.session(p.Authorization)
	if err != nil {
		return nil, err
	}
	info, err := client.UserInfo(ctx)
	if err != nil {
		return nil, s.observe(err)
	}
	return &info, nil
}

//encore:api public method=GET path=/ui/general/user/courses
func Courses(ctx context.Context, p *AuthParams) (*CoursesResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.Courses(ctx, p)
}

func (s *Service) Courses(ctx context.Context, p *AuthParams) (*CoursesResponse, error) {
	client, err := s.session(p.Authorization)
	if err != nil {
		return nil, err
	}
	courses, err := client.Courses(ctx)
	if err != nil {
		return nil, s.observe(err)
	}
	return &CoursesResponse{Courses: courses}, nil
}

//encore:api public method=GET path=/ui/general/languages
func Languages(ctx context.Context) (*LanguagesResponse, error) {
	return &LanguagesResponse{Languages: models.SupportedLanguages}, nil
}

//encore:api public method=PUT path=/ui/general/user/language
func UpdateUserLanguage(ctx context.Context, p *UpdateLanguageParams) error {
	if svc == nil {
		return errors.New("service not initialized")
	}
	return svc.UpdateUserLanguage(ctx, p)
}

func (s *Service) UpdateUserLanguage(ctx context.Context, p *UpdateLanguageParams) error {
	client, err := s.session(p.Authorization)
	if err != nil {
		return err
	}
	if !models.IsSupportedLanguage(p.PreferredLanguage) {
		return invalidArgument("unsupported language: " + p.PreferredLanguage)
	}
	return s.observe(client.UpdateUserLanguage(ctx, p.PreferredLanguage))
}

// Student

//encore:api public method=POST path=/ui/student/send-message
func SendMessage(ctx context.Context, p *SendMessageParams) (*models.Conversation, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.SendMessage(ctx, p)
}

func (s *Service) SendMessage(ctx context.Context, p *SendMessageParams) (*models.Conversation, error) {
	client, err := s.session(p.Authorization)
	if err != nil {
		return nil, err
	}
	if err := requireCourse(p.Course); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Message) == "" {
		return nil, invalidArgument("message cannot be empty")
	}
	conv, err := client.SendMessage(ctx, p.Course, p.Message, p.ConversationID, p.Language)
	if err != nil {
		return nil, s.observe(err)
	}
	return conv, nil
}

//encore:api public method=GET path=/ui/student/sessions
func PastSessions(ctx context.Context, p *CourseParams) (*SessionsResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.PastSessions(ctx, p)
}

func (s *Service) PastSessions(ctx context.Context, p *CourseParams) (*SessionsResponse, error) {
	client, err := s.session(p.Authorization)
	if err != nil {
		return nil, err
	}
	if err := requireCourse(p.Course); err != nil {
		return nil, err
	}
	sessions, err := client.PastSessions(ctx, p.Course)
	if err != nil {
		return nil, s.observe(err)
	}
	return &SessionsResponse{Sessions: sessions}, nil
}

//encore:api public method=GET path=/ui/student/session
func RestoreSession(ctx context.Context, p *RestoreSessionParams) (*models.Conversation, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.RestoreSession(ctx, p)
}

func (s *Service) RestoreSession(ctx context.Context, p *RestoreSessionParams) (*models.Conversation, error) {
	client, err := s.session(p.Authorization)
	if err != nil {
		return nil, err
	}
	if p.ConversationID == "" {
		return nil, invalidArgument("conversation_id is required")
	}
	conv, err := client.RestoreSession(ctx, p.ConversationID)
	if err != nil {
		return nil, s.observe(err)
	}
	return conv, nil
}

//encore:api public method=GET path=/llm/suggestions
func Suggestions(ctx context.Context, p *SuggestionsParams) (*SuggestionsResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.Suggestions(ctx, p)
}

func (s *Service) Suggestions(ctx context.Context, p *SuggestionsParams) (*SuggestionsResponse, error) {
	client, err := s.session(p.Authorization)
	if err != nil {
		return nil, err
	}
	if err := requireCourse(p.Course); err != nil {
		return nil, err
	}
	suggestions, err := client.Suggestions(ctx, p.Course, p.NumSuggests)
	if err != nil {
		return nil, s.observe(err)
	}
	return &SuggestionsResponse{Suggestions: suggestions}, nil
}

// Instructor

// TopQuestions returns the most asked questions. Bursts of identical requests within a
// session share one upstream call.
//
//encore:api public method=GET path=/ui/instructor/analytics/top-questions
func TopQuestions(ctx context.Context, p *RankingParams) (*QuestionsResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.TopQuestions(ctx, p)
}

func (s *Service) TopQuestions(ctx context.Context, p *RankingParams) (*QuestionsResponse, error) {
	client, err := s.session(p.Authorization)
	if err != nil {
		return nil, err
	}
	course, num, period, err := rankingArgs(p)
	if err != nil {
		return nil, err
	}
	questions, err := client.TopQuestions(ctx, course, num, period)
	if err != nil {
		return nil, s.observe(err)
	}
	return &QuestionsResponse{Questions: questions}, nil
}

//encore:api public method=GET path=/ui/instructor/analytics/top-materials
func TopMaterials(ctx context.Context, p *RankingParams) (*MaterialsResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.TopMaterials(ctx, p)
}

func (s *Service) TopMaterials(ctx context.Context, p *RankingParams) (*MaterialsResponse, error) {
	client, err := s.session(p.Authorization)
	if err != nil {
		return nil, err
	}
	course, num, period, err := rankingArgs(p)
	if err != nil {
		return nil, err
	}
	materials, err := client.TopMaterials(ctx, course, num, period)
	if err != nil {
		return nil, s.observe(err)
	}
	return &MaterialsResponse{Materials: materials}, nil
}

func rankingArgs(p *RankingParams) (string, int, models.Timeframe, error) {
	if err := requireCourse(p.Course); err != nil {
		return "", 0, "", err
	}
	period, err := parsePeriod(p.Period)
	if err != nil {
		return "", 0, "", err
	}
	num := p.Num
	if num <= 0 {
		num = defaultRankingSize
	}
	return p.Course, num, period, nil
}

//encore:api public method=GET path=/ui/instructor/analytics/engagement
func StudentEngagement(ctx context.Context, p *EngagementParams) (*models.StudentEngagement, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.StudentEngagement(ctx, p)
}

func (s *Service) StudentEngagement(ctx context.Context, p *EngagementParams) (*models.StudentEngagement, error) {
	client, err := s.session(p.Authorization)
	if err != nil {
		return nil, err
	}
	if err := requireCourse(p.Course); err != nil {
		return nil, err
	}
	period, err := parsePeriod(p.Period)
	if err != nil {
		return nil, err
	}
	engagement, err := client.StudentEngagement(ctx, p.Course, period)
	if err != nil {
		return nil, s.observe(err)
	}
	return &engagement, nil
}

//encore:api public method=GET path=/ui/instructor/config
func CourseConfiguration(ctx context.Context, p *CourseParams) (*models.CourseConfiguration, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.CourseConfiguration(ctx, p)
}

func (s *Service) CourseConfiguration(ctx context.Context, p *CourseParams) (*models.CourseConfiguration, error) {
	client, err := s.session(p.Authorization)
	if err != nil {
		return nil, err
	}
	if err := requireCourse(p.Course); err != nil {
		return nil, err
	}
	cfg, err := client.CourseConfiguration(ctx, p.Course)
	if err != nil {
		return nil, s.observe(err)
	}
	return cfg, nil
}

//encore:api public method=PUT path=/ui/instructor/config
func UpdateCourseConfiguration(ctx context.Context, p *UpdateConfigParams) error {
	if svc == nil {
		return errors.New("service not initialized")
	}
	return svc.UpdateCourseConfiguration(ctx, p)
}

func (s *Service) UpdateCourseConfiguration(ctx context.Context, p *UpdateConfigParams) error {
	client, err := s.session(p.Authorization)
	if err != nil {
		return err
	}
	if err := requireCourse(p.Course); err != nil {
		return err
	}
	return s.observe(client.UpdateCourseConfiguration(ctx, p.Course, p.Configuration))
}

//encore:api public method=GET path=/ui/instructor/all-materials
func CourseMaterials(ctx context.Context, p *CourseParams) (*CourseMaterialsResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.CourseMaterials(ctx, p)
}

func (s *Service) CourseMaterials(ctx context.Context, p *CourseParams) (*CourseMaterialsResponse, error) {
	client, err := s.session(p.Authorization)
	if err != nil {
		return nil, err
	}
	if err := requireCourse(p.Course); err != nil {
		return nil, err
	}
	materials, err := client.CourseMaterials(ctx, p.Course)
	if err != nil {
		return nil, s.observe(err)
	}
	return &CourseMaterialsResponse{Materials: materials}, nil
}

// RefreshCourseContent re-indexes a course and invalidates its cached reads everywhere.
//
//encore:api public method=POST path=/llm/content/refresh
func RefreshCourseContent(ctx context.Context, p *RefreshContentParams) error {
	if svc == nil {
		return errors.New("service not initialized")
	}
	return svc.RefreshCourseContent(ctx, p)
}

func (s *Service) RefreshCourseContent(ctx context.Context, p *RefreshContentParams) error {
	client, err := s.session(p.Authorization)
	if err != nil {
		return err
	}
	if err := requireCourse(p.Course); err != nil {
		return err
	}

	ctx, requestID := logging.EnsureRequestID(ctx)
	if err := client.RefreshCourseContent(ctx, p.Course); err != nil {
		return s.observe(err)
	}

	client.InvalidateCourse(p.Course)
	event := &pubsub.ContentRefreshedEvent{
		Version:     pubsub.EventVersion1,
		Service:     serviceName,
		Course:      p.Course,
		TriggeredAt: s.clock.Now(),
		RequestID:   requestID,
	}
	if err := s.events.PublishContentRefreshed(ctx, event); err != nil {
		s.metrics.EventErrors.Add(1)
		logging.Error(ctx, "Failed to publish content refreshed", err, logging.Fields{"course": p.Course})
	}
	return nil
}

// Monitoring

// GetMetrics reports session count and aggregated cache and coalescer statistics.
//
//encore:api public method=GET path=/gateway/metrics
func GetMetrics(ctx context.Context) (*MetricsResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.GetMetrics(ctx)
}

func (s *Service) GetMetrics(ctx context.Context) (*MetricsResponse, error) {
	return &MetricsResponse{
		Registry:    s.sessions.Stats(),
		RateLimit:   s.limiter.GetStats(),
		Requests:    s.metrics.Requests.Load(),
		Failures:    s.metrics.Failures.Load(),
		Canceled:    s.metrics.Canceled.Load(),
		Throttled:   s.metrics.Throttled.Load(),
		Resets:      s.metrics.Resets.Load(),
		SweptIdle:   s.metrics.SweptIdle.Load(),
		EventErrors: s.metrics.EventErrors.Load(),
	}, nil
}
