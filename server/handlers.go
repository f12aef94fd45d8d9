package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/engine"
	"github.com/rushteam/recallkit/pkg/conv"
	"github.com/rushteam/recallkit/retrieval"
)

// 不作为 filters 透传的查询参数
var reservedParams = map[string]struct{}{
	"user_id": {}, "scene": {}, "page": {}, "size": {}, "debug": {},
}

func invalid(msg string) error {
	return core.NewDomainError(core.ModuleEngine, core.ErrorCodeInvalidInput, msg)
}

// recommend 处理 GET /v1/recommend?user_id=1&scene=home&page=0&size=10。
// 其余查询参数作为 filters 透传，例如 expr、diversityKey、interleaveChannels。
func (s *Server) recommend(c *gin.Context) {
	params := queryParams(c)
	userID := conv.ConfigGetInt64(params, "user_id", 0)
	if userID <= 0 {
		s.fail(c, core.ErrMissingUserID)
		return
	}
	req := engine.RecommendRequest{
		UserID: userID,
		Scene:  conv.ConfigGetString(params, "scene", ""),
		Page:   conv.ConfigGetInt(params, "page", 0),
		Size:   conv.ConfigGetInt(params, "size", engine.DefaultPageSize),
		Debug:  conv.ConfigGetBool(params, "debug", false),
	}
	for key, v := range params {
		if _, reserved := reservedParams[key]; reserved {
			continue
		}
		if req.Filters == nil {
			req.Filters = make(map[string]any)
		}
		req.Filters[key] = v
	}

	page, err := s.engine.Recommend(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// search 处理 GET /v1/search?q=golang&user_id=1&global=true&top_k=10&feed_ids=1,2。
func (s *Server) search(c *gin.Context) {
	text := strings.TrimSpace(c.Query("q"))
	if text == "" {
		s.fail(c, invalid("query parameter q is required"))
		return
	}
	params := queryParams(c)
	q := retrieval.Query{
		Text:          text,
		UserID:        conv.ConfigGetInt64(params, "user_id", 0),
		IncludeGlobal: conv.ConfigGetBool(params, "global", false),
		TopK:          conv.ConfigGetInt(params, "top_k", s.opts.SearchTopK),
		MinScore:      conv.ConfigGetFloat(params, "min_score", s.opts.SearchMinScore),
	}
	if v, ok := params["feed_ids"]; ok {
		q.FeedIDs = conv.ParseInt64s(v)
	}
	if !q.IncludeGlobal && q.UserID <= 0 {
		s.fail(c, invalid("user_id is required unless global=true"))
		return
	}
	docs, err := s.engine.Search(c.Request.Context(), q)
	if err != nil {
		s.fail(c, err)
		return
	}
	if docs == nil {
		docs = []core.DocScore{}
	}
	c.JSON(http.StatusOK, gin.H{"items": docs, "total": len(docs)})
}

// queryParams 取每个查询参数的第一个值。
func queryParams(c *gin.Context) map[string]any {
	values := c.Request.URL.Query()
	out := make(map[string]any, len(values))
	for key, vs := range values {
		if len(vs) > 0 {
			out[key] = vs[0]
		}
	}
	return out
}
