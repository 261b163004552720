package gateway

import (
	"fmt"
	"strings"
)

// headline renders the first line of a chat announcement.
func headline(evt *Event) string {
	title := evt.Title
	if title == "" {
		title = strings.ReplaceAll(string(evt.Type), "_", " ")
	}
	return fmt.Sprintf("[%s] %s", evt.Type, title)
}

// chatText renders evt for platforms using the given bold marker.
func chatText(evt *Event, bold string) string {
	text := bold + headline(evt) + bold
	if evt.Summary != "" {
		text += "\n" + evt.Summary
	}
	return text
}
