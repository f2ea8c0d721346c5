package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/miekg/dns"

	"dnsrelay/log"
)

const redisKeyPrefix = "dnsrelay:"

// Redis is the external backend.  Expiry is delegated to Redis and
// additionally recorded in the entry so remaining TTL can be
// recomputed on read.  Every backend error degrades to a miss or a
// dropped write.
type Redis struct {
	client *redis.Client
}

type redisEntry struct {
	// Answers in presentation format, dns.NewRR parses them back
	Answers []string `json:"answers"`
	// Expire unix seconds
	Expire int64 `json:"expire"`
}

// NewRedis connects to the backend.  An unreachable backend is a
// warning, not an error: the relay serves uncached until the backend
// comes back.
func NewRedis(addr, password string, db int) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Sugar.Warnf("cache redis %s unreachable, serving uncached until it returns, error=[%+v]", addr, err)
	} else {
		log.Sugar.Infof("cache redis %s connected", addr)
	}

	return &Redis{client: client}
}

func (r *Redis) Get(name string, qtype uint16) ([]dns.RR, bool) {
	k := redisKeyPrefix + key(name, qtype)

	raw, err := r.client.Get(context.Background(), k).Result()
	if err != nil {
		if err != redis.Nil {
			log.Sugar.Debugf("cache redis get error=[%+v]", err)
		}
		return nil, false
	}

	var entry redisEntry
	if err = json.Unmarshal([]byte(raw), &entry); err != nil {
		log.Sugar.Debugf("cache redis entry decode error=[%+v]", err)
		return nil, false
	}

	remaining := entry.Expire - time.Now().Unix()
	if remaining <= 0 {
		r.del(k)
		return nil, false
	}

	var answers = make([]dns.RR, 0, len(entry.Answers))
	for _, s := range entry.Answers {
		rr, err := dns.NewRR(s)
		if err != nil || rr == nil {
			log.Sugar.Debugf("cache redis rr decode error=[%+v] raw=[%s]", err, s)
			return nil, false
		}
		rr.Header().Ttl = uint32(remaining)
		answers = append(answers, rr)
	}
	if len(answers) == 0 {
		return nil, false
	}

	return answers, true
}

func (r *Redis) Set(name string, qtype uint16, answers []dns.RR) {
	if len(answers) == 0 {
		return
	}

	ttl := minTTL(answers)
	if ttl == 0 {
		return
	}

	entry := redisEntry{
		Answers: make([]string, len(answers)),
		Expire:  time.Now().Unix() + int64(ttl),
	}
	for i, rr := range answers {
		entry.Answers[i] = rr.String()
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		log.Sugar.Warnf("cache redis entry encode error=[%+v]", err)
		return
	}

	k := redisKeyPrefix + key(name, qtype)
	expiration := time.Duration(ttl) * time.Second
	if err = r.client.Set(context.Background(), k, raw, expiration).Err(); err != nil {
		log.Sugar.Warnf("cache redis set error=[%+v]", err)
	}
}

func (r *Redis) Delete(name string, qtype uint16) {
	r.del(redisKeyPrefix + key(name, qtype))
}

func (r *Redis) del(k string) {
	if err := r.client.Del(context.Background(), k).Err(); err != nil {
		log.Sugar.Debugf("cache redis del error=[%+v]", err)
	}
}

// Close releases the client connection pool.
func (r *Redis) Close() {
	if err := r.client.Close(); err != nil {
		log.Sugar.Warnf("cache redis close error=[%+v]", err)
	}
}
