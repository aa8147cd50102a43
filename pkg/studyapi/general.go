package studyapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"aceit.app/pkg/models"
	"aceit.app/pkg/ttlcache"
	"aceit.app/pkg/utils"
)

// Courses returns the user's courses, each annotated with the user's role and availability.
func (c *Client) Courses(ctx context.Context) ([]models.Course, error) {
	if _, err := c.token(); err != nil {
		return nil, err
	}

	key := utils.CacheKey("courses")
	if courses, ok := ttlcache.Lookup[[]models.Course](c.cache, key); ok {
		return courses, nil
	}

	var raw json.RawMessage
	if err := c.call(ctx, request{op: opCourses, method: http.MethodGet, path: "/ui/general/user/courses"}, &raw); err != nil {
		return nil, err
	}

	courses, err := models.ParseCourseGroups(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opCourses.name, err)
	}

	c.cache.Set(key, courses)
	return courses, nil
}

// UserInfo returns the signed-in user's profile.
func (c *Client) UserInfo(ctx context.Context) (models.UserInfo, error) {
	if _, err := c.token(); err != nil {
		return models.UserInfo{}, err
	}

	key := utils.CacheKey("userInfo")
	if info, ok := ttlcache.Lookup[models.UserInfo](c.cache, key); ok {
		return info, nil
	}

	var info models.UserInfo
	if err := c.call(ctx, request{op: opUserInfo, method: http.MethodGet, path: "/ui/general/user"}, &info); err != nil {
		return models.UserInfo{}, err
	}

	c.cache.Set(key, info)
	return info, nil
}

// UpdateUserLanguage stores the user's preferred assistant language.
func (c *Client) UpdateUserLanguage(ctx context.Context, language string) error {
	body := struct {
		PreferredLanguage string `json:"preferred_language"`
	}{PreferredLanguage: language}

	return c.call(ctx, request{
		op:     opUpdateLanguage,
		method: http.MethodPut,
		path:   "/ui/general/user/language",
		body:   body,
	}, nil)
}
