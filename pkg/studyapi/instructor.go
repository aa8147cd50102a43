package studyapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"aceit.app/pkg/models"
	"aceit.app/pkg/ttlcache"
	"aceit.app/pkg/utils"
)

// TopQuestions returns the most asked questions of a course over period.
//
// Cached reads return immediately. Otherwise calls within the quiet period share one
// upstream request made with the first caller's arguments, and a newer window supersedes a
// request still in flight; the superseded callers get an error matching IsCanceled.
func (c *Client) TopQuestions(ctx context.Context, course string, num int, period models.Timeframe) ([]string, error) {
	if err := c.checkAnalytics(opTopQuestions, period); err != nil {
		return nil, err
	}

	key := utils.CacheKey(opTopQuestions.name, course, num, period)
	if questions, ok := ttlcache.Lookup[[]string](c.cache, key); ok {
		return questions, nil
	}
	return c.topQuestions.Call(ctx, rankingQuery{Course: course, Num: num, Period: period})
}

func (c *Client) fetchTopQuestions(ctx context.Context, q rankingQuery) ([]string, error) {
	key := utils.CacheKey(opTopQuestions.name, q.Course, q.Num, q.Period)
	if questions, ok := ttlcache.Lookup[[]string](c.cache, key); ok {
		return questions, nil
	}

	ctx, done := c.questionsScope.Signal(ctx)
	defer done()

	var questions []string
	if err := c.call(ctx, rankingRequest(opTopQuestions, "/ui/instructor/analytics/top-questions", q), &questions); err != nil {
		return nil, err
	}

	c.cache.Set(key, questions)
	return questions, nil
}

// TopMaterials returns the most referenced course materials over period. It coalesces
// like TopQuestions.
func (c *Client) TopMaterials(ctx context.Context, course string, num int, period models.Timeframe) ([]models.Material, error) {
	if err := c.checkAnalytics(opTopMaterials, period); err != nil {
		return nil, err
	}

	key := utils.CacheKey(opTopMaterials.name, course, num, period)
	if materials, ok := ttlcache.Lookup[[]models.Material](c.cache, key); ok {
		return materials, nil
	}
	return c.topMaterials.Call(ctx, rankingQuery{Course: course, Num: num, Period: period})
}

func (c *Client) fetchTopMaterials(ctx context.Context, q rankingQuery) ([]models.Material, error) {
	key := utils.CacheKey(opTopMaterials.name, q.Course, q.Num, q.Period)
	if materials, ok := ttlcache.Lookup[[]models.Material](c.cache, key); ok {
		return materials, nil
	}

	ctx, done := c.materialsScope.Signal(ctx)
	defer done()

	var materials []models.Material
	if err := c.call(ctx, rankingRequest(opTopMaterials, "/ui/instructor/analytics/top-materials", q), &materials); err != nil {
		return nil, err
	}

	c.cache.Set(key, materials)
	return materials, nil
}

// StudentEngagement returns usage totals of a course over period. It coalesces like
// TopQuestions.
func (c *Client) StudentEngagement(ctx context.Context, course string, period models.Timeframe) (models.StudentEngagement, error) {
	if err := c.checkAnalytics(opEngagement, period); err != nil {
		return models.StudentEngagement{}, err
	}

	key := utils.CacheKey(opEngagement.name, course, period)
	if engagement, ok := ttlcache.Lookup[models.StudentEngagement](c.cache, key); ok {
		return engagement, nil
	}
	return c.engagement.Call(ctx, engagementQuery{Course: course, Period: period})
}

func (c *Client) fetchEngagement(ctx context.Context, q engagementQuery) (models.StudentEngagement, error) {
	key := utils.CacheKey(opEngagement.name, q.Course, q.Period)
	if engagement, ok := ttlcache.Lookup[models.StudentEngagement](c.cache, key); ok {
		return engagement, nil
	}

	ctx, done := c.engagementScope.Signal(ctx)
	defer done()

	var engagement models.StudentEngagement
	err := c.call(ctx, request{
		op:     opEngagement,
		method: http.MethodGet,
		path:   "/ui/instructor/analytics/engagement",
		query:  url.Values{"course": {q.Course}, "period": {string(q.Period)}},
	}, &engagement)
	if err != nil {
		return models.StudentEngagement{}, err
	}

	c.cache.Set(key, engagement)
	return engagement, nil
}

func (c *Client) checkAnalytics(op operation, period models.Timeframe) error {
	if _, err := c.token(); err != nil {
		return err
	}
	if !period.Valid() {
		return fmt.Errorf("%s: %w: %q", op.name, ErrInvalidTimeframe, period)
	}
	return nil
}

func rankingRequest(op operation, path string, q rankingQuery) request {
	return request{
		op:     op,
		method: http.MethodGet,
		path:   path,
		query: url.Values{
			"course": {q.Course},
			"num":    {strconv.Itoa(q.Num)},
			"period": {string(q.Period)},
		},
	}
}

// CourseConfiguration returns the assistant configuration of a course.
func (c *Client) CourseConfiguration(ctx context.Context, course string) (*models.CourseConfiguration, error) {
	if _, err := c.token(); err != nil {
		return nil, err
	}

	key := utils.CacheKey(opCourseConfig.name, course)
	if cfg, ok := ttlcache.Lookup[models.CourseConfiguration](c.cache, key); ok {
		return &cfg, nil
	}

	var cfg models.CourseConfiguration
	err := c.call(ctx, request{
		op:     opCourseConfig,
		method: http.MethodGet,
		path:   "/ui/instructor/config",
		query:  url.Values{"course": {course}},
	}, &cfg)
	if err != nil {
		return nil, err
	}

	c.cache.Set(key, cfg)
	return &cfg, nil
}

// UpdateCourseConfiguration replaces the assistant configuration of a course.
//
// The cached configuration is left alone, so a read within the cache TTL may still return
// the previous value.
func (c *Client) UpdateCourseConfiguration(ctx context.Context, course string, cfg models.CourseConfiguration) error {
	return c.call(ctx, request{
		op:     opUpdateConfig,
		method: http.MethodPut,
		path:   "/ui/instructor/config",
		body:   models.UpdateCourseConfigurationRequest{Course: course, CourseConfiguration: cfg},
	}, nil)
}

// RefreshCourseContent asks the API to re-index a course's materials.
func (c *Client) RefreshCourseContent(ctx context.Context, course string) error {
	body := struct {
		Course string `json:"course"`
	}{Course: course}

	return c.call(ctx, request{
		op:     opRefreshContent,
		method: http.MethodPost,
		path:   "/llm/content/refresh",
		body:   body,
	}, nil)
}

// CourseMaterials lists every document indexed for a course.
func (c *Client) CourseMaterials(ctx context.Context, course string) ([]models.CourseMaterial, error) {
	var materials []models.CourseMaterial
	err := c.call(ctx, request{
		op:     opCourseMaterials,
		method: http.MethodGet,
		path:   "/ui/instructor/all-materials",
		query:  url.Values{"course": {course}},
	}, &materials)
	if err != nil {
		return nil, err
	}
	return materials, nil
}
