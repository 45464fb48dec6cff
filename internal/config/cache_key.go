package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// PrincipalKey returns the cache key for the user resolved from a token id.
func (r *CacheKeyStruct) PrincipalKey(jti string) string {
	return fmt.Sprintf("user:token:%s", jti)
}

// CourseListGenerationKey holds the counter that invalidates cached course pages.
func (r *CacheKeyStruct) CourseListGenerationKey() string {
	return "course:list:gen"
}

// CourseListKey returns the cache key for one page of the course list.
func (r *CacheKeyStruct) CourseListKey(generation int64, page, perPage int) string {
	return fmt.Sprintf("course:list:%d:%d:%d", generation, page, perPage)
}

// LoginAttemptsKey returns the fixed-window counter key for login attempts from an IP.
func (r *CacheKeyStruct) LoginAttemptsKey(ip string, window int64) string {
	return fmt.Sprintf("login:attempts:%s:%d", ip, window)
}

// ClassEventsChannel returns the Redis PubSub channel for a section's change events.
func (r *CacheKeyStruct) ClassEventsChannel(classSN int) string {
	return fmt.Sprintf("class:%d:events", classSN)
}

var CacheKey = NewCacheKeyStruct()
