package models

import (
	"net/http"
	"time"
)

// ResponseModel Base response structure that can be reused
type ResponseModel struct {
	Code        int         `json:"code"`
	CurrentTime int64       `json:"currentTime"`
	Data        interface{} `json:"data"`
	Text        string      `json:"text"`
	Version     int         `json:"version"`
}

const ResponseVersion = 2

// NewResponse builds a response envelope stamped with the current time
func NewResponse(code int, data interface{}, text string) ResponseModel {
	return ResponseModel{
		Code:        code,
		CurrentTime: ResponseCurrentTime(),
		Data:        data,
		Text:        text,
		Version:     ResponseVersion,
	}
}

func NewOKResponse(data interface{}) ResponseModel {
	return NewResponse(http.StatusOK, data, "OK")
}

// NewEntryResponse wraps a single entry as {"entry": ...}
func NewEntryResponse(entry interface{}) ResponseModel {
	data := map[string]interface{}{
		"entry": entry,
	}
	return NewOKResponse(data)
}

// NewListResponse wraps a list as {"list": ..., "limitExceeded": ...}
func NewListResponse(list interface{}, limitExceeded bool) ResponseModel {
	data := map[string]interface{}{
		"list":          list,
		"limitExceeded": limitExceeded,
	}
	return NewOKResponse(data)
}

// ResponseCurrentTime returns the current time in Unix milliseconds
func ResponseCurrentTime() int64 {
	return time.Now().UnixMilli()
}
