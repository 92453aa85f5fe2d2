package report

import (
	"fmt"
	"regexp"
	"strings"

	"farmersaid/api"
	"farmersaid/internal/logger"
)

const reportSystemPrompt = "You will be provided with two tables containing weather and agriculture data: " +
	"one with current and historical data, and another with forecasted data. " +
	"Your task is to analyze this data by comparing current conditions with historical trends and forecasts. " +
	"Identify patterns, anomalies, and key agricultural impacts such as optimal farming periods, " +
	"weather-related risks, and crop suitability based on soil and temperature conditions. " +
	"Generate a concise and insightful report tailored to farmers, offering actionable advice on irrigation, " +
	"planting, harvesting, and resource management to help improve farm productivity. " +
	"Add --- between each 2 chapters make chapters ## and title #"

const askSystemTemplate = `You will be provided with a prompt requesting a custom statistic about agriculture, along with the user's location data {{location}}, and current data collected from this same location {{current}} and {{forecast}}
Output the following in Markdown format:
1. Title
2. **Statistics Paragraph**: Write a concise paragraph summarizing the statistics provided.
---
3. Statistics paragraph from {{current}}
---
4. Statistics paragraph from {{forecast}}
`

var templateVar = regexp.MustCompile(`\{\{(\w+)\}\}`)

// reportUserMessage is the data message sent with the narrative report prompt
func reportUserMessage(history, forecast string) string {
	return fmt.Sprintf("Current and historical data:\n%s\n\nForecasted data:\n%s", history, forecast)
}

// describePlace renders the location handed to the custom statistic prompt
func describePlace(p api.Place) string {
	return fmt.Sprintf("%s, %s (latitude %s, longitude %s)", p.City, p.Country, p.Latitude, p.Longitude)
}

// substitute replaces {{name}} placeholders with values. Unknown names are
// left visible as [missing:name].
func substitute(template string, values map[string]string) string {
	return templateVar.ReplaceAllStringFunc(template, func(match string) string {
		name := strings.Trim(match, "{}")
		if v, ok := values[name]; ok {
			return v
		}
		logger.Warn("Prompt template references unknown variable %q", name)
		return fmt.Sprintf("[missing:%s]", name)
	})
}
