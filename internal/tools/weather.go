package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"ride-chat-go/internal/config"

	"github.com/cloudwego/eino/schema"
)

type weatherTool struct {
	baseURL string
	client  *http.Client
}

// NewWeatherTool 创建查询当前天气的工具，接口兼容 Open-Meteo 的 /v1/forecast。
func NewWeatherTool(cfg config.WeatherConfig) Tool {
	return &weatherTool{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (t *weatherTool) Info() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: string(GetWeather),
		Desc: "Get the current weather at a location",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"latitude":  {Type: schema.Number, Desc: "Latitude of the location", Required: true},
			"longitude": {Type: schema.Number, Desc: "Longitude of the location", Required: true},
		}),
	}
}

type weatherArgs struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (t *weatherTool) Invoke(ctx context.Context, args json.RawMessage, _ *TurnContext) (json.RawMessage, error) {
	var a weatherArgs
	if err := decodeArgs(GetWeather, args, &a); err != nil {
		return nil, err
	}
	if a.Latitude == nil || a.Longitude == nil {
		return nil, &ToolError{Tool: GetWeather, Err: fmt.Errorf("latitude and longitude are required")}
	}

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(*a.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(*a.Longitude, 'f', -1, 64))
	q.Set("current", "temperature_2m")
	q.Set("hourly", "temperature_2m")
	q.Set("daily", "sunrise,sunset")
	q.Set("timezone", "auto")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/v1/forecast?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create weather request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call weather api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read weather response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather api returned non-200 status: %s", resp.Status)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("weather api returned invalid json")
	}
	return body, nil
}
