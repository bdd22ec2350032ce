package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchService(t *testing.T) {
	var query map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		assert.Equal(t, "/chat_turns/_search", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &query))
		_, _ = w.Write([]byte(`{"hits":{"hits":[{"_score":1.5,"_source":{
			"turn_id":"t1","chat_id":"c1","user_id":1,
			"user_text":"weather in berlin","assistant_text":"sunny",
			"created_at":"2024-05-01 10:00:00"}}]}}`))
	}))
	defer srv.Close()

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	svc := NewSearchService(client, "chat_turns")

	hits, err := svc.Search(context.Background(), guest, "Weather?? in Berlin!", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c1", hits[0].ChatID)
	assert.Equal(t, 1.5, hits[0].Score)

	boolQuery := query["query"].(map[string]interface{})["bool"].(map[string]interface{})
	filter := boolQuery["filter"].(map[string]interface{})["term"].(map[string]interface{})
	assert.EqualValues(t, 1, filter["user_id"])
	match := boolQuery["must"].(map[string]interface{})["multi_match"].(map[string]interface{})
	assert.Equal(t, "weather in berlin", match["query"])
	assert.EqualValues(t, 5, query["size"])
}

func TestSearchServiceRejectsEmptyQuery(t *testing.T) {
	svc := NewSearchService(nil, "chat_turns")
	_, err := svc.Search(context.Background(), guest, " ?! ", 5)
	requireCode(t, err, "bad_request:api")
	_, err = svc.Search(context.Background(), nil, "hi", 5)
	requireCode(t, err, "unauthorized:history")
}
