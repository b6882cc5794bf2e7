package requestdata

import (
	"context"

	"github.com/google/uuid"
)

type key struct{}

var requestDataKey key

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	val := ctx.Value(requestDataKey)
	if rd, ok := val.(*RequestData); ok {
		return rd
	}
	return nil
}

// UserIDFrom returns the authenticated user ID carried by the context.
// The second return is false when the request never passed auth.
func UserIDFrom(ctx context.Context) (uuid.UUID, bool) {
	rd := GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return uuid.Nil, false
	}
	return rd.UserID, true
}

type RequestData struct {
	TokenString  string
	RefreshToken string
	UserID       uuid.UUID
}
