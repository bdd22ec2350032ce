package service

import (
	"fmt"
	"strings"
)

const regularPrompt = "You are a friendly assistant! Keep your responses concise and helpful."

const documentsPrompt = `Documents are a side panel that helps users with writing and editing tasks.
Use createDocument for substantial content (over 10 lines) or content the user is likely to save or reuse, such as emails, code or essays.
Use updateDocument only when the user asks to change an existing document, and never right after creating it.
Use requestSuggestions only when the user asks for suggestions on an existing document.
Do not use document tools for short conversational answers.`

// RequestHints 是客户端提供的地理位置提示，用于让模型回答与位置有关的问题。
type RequestHints struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	City      string   `json:"city"`
	Country   string   `json:"country"`
}

func (h *RequestHints) empty() bool {
	return h == nil || (h.Latitude == nil && h.Longitude == nil && h.City == "" && h.Country == "")
}

// buildSystemPrompt 组装系统提示词。推理模型不带工具，因此也不需要文档工具的说明。
func buildSystemPrompt(base string, withTools bool, hints *RequestHints) string {
	if base == "" {
		base = regularPrompt
	}
	var b strings.Builder
	b.WriteString(base)

	if !hints.empty() {
		b.WriteString("\n\nAbout the origin of the user's request:")
		if hints.Latitude != nil {
			fmt.Fprintf(&b, "\n- lat: %g", *hints.Latitude)
		}
		if hints.Longitude != nil {
			fmt.Fprintf(&b, "\n- lon: %g", *hints.Longitude)
		}
		if hints.City != "" {
			fmt.Fprintf(&b, "\n- city: %s", hints.City)
		}
		if hints.Country != "" {
			fmt.Fprintf(&b, "\n- country: %s", hints.Country)
		}
	}

	if withTools {
		b.WriteString("\n\n")
		b.WriteString(documentsPrompt)
	}
	return b.String()
}
