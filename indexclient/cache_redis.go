package indexclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"vitalgraph.io/vgerrors"
)

// RedisTokenCache shares one bearer token across every VitalGraph
// instance pointed at the same index and Keycloak realm, so a fleet of
// replicas does not each independently hammer the token endpoint.
type RedisTokenCache struct {
	client *redis.Client
	key    string
}

// NewRedisTokenCache builds a TokenCache backed by the given Redis
// client. key namespaces the cached token, e.g. "vitalgraph:fuseki:token".
func NewRedisTokenCache(client *redis.Client, key string) *RedisTokenCache {
	return &RedisTokenCache{client: client, key: key}
}

func (c *RedisTokenCache) Get(ctx context.Context) (*oauth2.Token, bool) {
	raw, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		return nil, false
	}
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, false
	}
	return &tok, true
}

func (c *RedisTokenCache) Set(ctx context.Context, tok *oauth2.Token) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return vgerrors.Wrap(vgerrors.Auth, "marshalling bearer token for redis cache", err)
	}
	ttl := time.Until(tok.Expiry)
	if ttl <= 0 {
		ttl = refreshSkew
	}
	if err := c.client.Set(ctx, c.key, raw, ttl).Err(); err != nil {
		return vgerrors.Wrap(vgerrors.Auth, fmt.Sprintf("writing bearer token to redis key %s", c.key), err)
	}
	return nil
}
