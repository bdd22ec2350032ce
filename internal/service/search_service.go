package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"ride-chat-go/internal/model"
	"ride-chat-go/pkg/apperr"
	"ride-chat-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
)

var (
	reKeep  = regexp.MustCompile(`[^\p{Han}\p{L}\p{N}\s]+`)
	reSpace = regexp.MustCompile(`\s+`)
)

// SearchService 在已索引的回合中检索调用方自己的内容。
type SearchService interface {
	Search(ctx context.Context, identity *model.Identity, query string, size int) ([]model.SearchHit, error)
}

type searchService struct {
	esClient  *elasticsearch.Client
	indexName string
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(esClient *elasticsearch.Client, indexName string) SearchService {
	return &searchService{esClient: esClient, indexName: indexName}
}

func (s *searchService) Search(ctx context.Context, identity *model.Identity, query string, size int) ([]model.SearchHit, error) {
	if identity == nil {
		return nil, apperr.Unauthorized(apperr.ScopeHistory)
	}
	normalized := normalizeQuery(query)
	if normalized == "" {
		return nil, apperr.BadRequest(apperr.ScopeAPI, errors.New("empty query"))
	}
	if size <= 0 || size > 50 {
		size = 10
	}

	esQuery := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": map[string]interface{}{
					"multi_match": map[string]interface{}{
						"query":  normalized,
						"fields": []string{"user_text", "assistant_text"},
					},
				},
				"filter": map[string]interface{}{
					"term": map[string]interface{}{"user_id": identity.UserID},
				},
				"should": []map[string]interface{}{
					{"match_phrase": map[string]interface{}{"user_text": map[string]interface{}{"query": normalized, "boost": 3.0}}},
				},
			},
		},
		"size": size,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, apperr.Internal(apperr.ScopeHistory, fmt.Errorf("failed to encode es query: %w", err))
	}

	res, err := s.esClient.Search(
		s.esClient.Search.WithContext(ctx),
		s.esClient.Search.WithIndex(s.indexName),
		s.esClient.Search.WithBody(&buf),
	)
	if err != nil {
		log.Errorf("[SearchService] 向 Elasticsearch 发送搜索请求失败: %v", err)
		return nil, apperr.Internal(apperr.ScopeHistory, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		log.Errorf("[SearchService] Elasticsearch 返回错误, status: %s, body: %s", res.Status(), string(body))
		return nil, apperr.Internal(apperr.ScopeHistory, fmt.Errorf("elasticsearch returned %s", res.Status()))
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.TurnDocument `json:"_source"`
				Score  float64            `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, apperr.Internal(apperr.ScopeHistory, fmt.Errorf("failed to decode es response: %w", err))
	}

	hits := make([]model.SearchHit, 0, len(esResponse.Hits.Hits))
	for _, h := range esResponse.Hits.Hits {
		hits = append(hits, model.SearchHit{
			ChatID:        h.Source.ChatID,
			TurnID:        h.Source.TurnID,
			UserText:      h.Source.UserText,
			AssistantText: h.Source.AssistantText,
			Score:         h.Score,
			CreatedAt:     h.Source.CreatedAt,
		})
	}
	log.Infof("[SearchService] query '%s' 命中 %d 条", normalized, len(hits))
	return hits, nil
}

// normalizeQuery 去掉标点与多余空白，只保留文字和数字。
func normalizeQuery(q string) string {
	kept := reKeep.ReplaceAllString(strings.ToLower(q), " ")
	return strings.TrimSpace(reSpace.ReplaceAllString(kept, " "))
}
