package httpserver

import (
	"net/http"
	"time"
	"unsafe"

	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
	"github.com/modern-go/reflect2"
)

// jsonAPI is a json-iterator instance compatible with encoding/json, but with
// a custom encoder emitting time.Time as RFC3339 without fractional seconds.
type timeRFC3339Encoder struct{}

func (e *timeRFC3339Encoder) IsEmpty(ptr unsafe.Pointer) bool {
	t := *((*time.Time)(ptr))
	return t.IsZero()
}

func (e *timeRFC3339Encoder) Encode(ptr unsafe.Pointer, stream *jsoniter.Stream) {
	t := *((*time.Time)(ptr))
	stream.WriteString(t.Format(time.RFC3339))
}

type timeExt struct{ jsoniter.DummyExtension }

func (e *timeExt) CreateEncoder(typ reflect2.Type) jsoniter.ValEncoder {
	tt := reflect2.TypeOfPtr((*time.Time)(nil)).Elem()
	if typ == tt {
		return &timeRFC3339Encoder{}
	}
	return nil
}

var jsonAPI = func() jsoniter.API {
	api := jsoniter.ConfigCompatibleWithStandardLibrary
	api.RegisterExtension(&timeExt{})
	return api
}()

// jsonRender satisfies gin's render contract using jsonAPI.
type jsonRender struct{ data any }

func (r jsonRender) Render(w http.ResponseWriter) error {
	r.WriteContentType(w)
	return jsonAPI.NewEncoder(w).Encode(r.data)
}

func (r jsonRender) WriteContentType(w http.ResponseWriter) {
	header := w.Header()
	if val := header["Content-Type"]; len(val) == 0 {
		header["Content-Type"] = []string{"application/json; charset=utf-8"}
	}
}

// JSON is the unified JSON responder; prefer this over c.JSON so the global
// encoding settings apply everywhere.
func (s *Server) JSON(c *gin.Context, code int, v any) {
	c.Render(code, jsonRender{data: v})
}
