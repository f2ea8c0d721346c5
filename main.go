package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dnsrelay/cache"
	"dnsrelay/log"
	"dnsrelay/model"
	"dnsrelay/override"
	"dnsrelay/pending"
	"dnsrelay/relay"
	"dnsrelay/udp"
	"dnsrelay/upstream"
)

// Option represents the config file.  For further additions, please
// do not rely on zero values meaning "enabled" since that causes
// surprises when config files are partial.
type Option struct {
	Log struct {
		File    string `json:"file"`
		STDOUT  bool   `json:"stdout"`
		Verbose bool   `json:"verbose"`
	} `json:"log"`

	Server udp.Config `json:"server"`

	Upstream upstream.Config `json:"upstream"`

	// OverrideFile hosts-style static table, empty disables overrides
	OverrideFile string `json:"override_file"`

	Cache struct {
		// Engine selects the backend: memory (default), redis, none
		Engine string `json:"engine"`
		Redis  struct {
			Address  string `json:"address"`
			Password string `json:"password"`
			DB       int    `json:"db"`
		} `json:"redis"`
	} `json:"cache"`
}

var (
	option Option
)

func main() {

	path := "dnsrelay.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	if err = json.Unmarshal(raw, &option); err != nil {
		panic(err)
	}

	// init log
	if err = initLog(); err != nil {
		return
	}
	defer func() {
		_ = log.Logger.Sync()
		time.Sleep(time.Second)
	}()

	var overrides *override.Table
	if len(option.OverrideFile) > 0 {
		if overrides, err = override.Load(option.OverrideFile); err != nil {
			log.Sugar.Error(err)
			return
		}
	}

	answers := newCache()

	var tracker = pending.New()
	var respChan = make(chan *model.Exchange)

	var up *upstream.Upstream
	if up, err = upstream.New(option.Upstream, tracker, answers, respChan); err != nil {
		log.Sugar.Error(err)
		return
	}

	engine := relay.New(overrides, answers, up, respChan)

	var server *udp.Server
	if server, err = udp.New(option.Server, engine.Handle, respChan); err != nil {
		log.Sugar.Error(err)
		return
	}

	up.Start()     // start upstream flows
	server.Start() // start listener

	// the relay is running until os exit
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM)
	s := <-sc
	log.Sugar.Infof("signal %d %s", s, s)

	server.StopRead()
	up.Stop()
	server.StopWrite()

	if r, ok := answers.(*cache.Redis); ok {
		r.Close()
	}
}

func initLog() error {
	lc := log.Config{
		File:       option.Log.File,
		STDOUT:     option.Log.STDOUT,
		MaxAge:     2,
		MaxSize:    10,
		MaxBackups: 100,
	}

	if option.Log.Verbose {
		lc.Level = -1
	}

	if err := log.Init(lc); err != nil {
		fmt.Println("log init error", err)
		return err
	}

	return nil
}

func newCache() cache.Cache {
	switch option.Cache.Engine {
	case "none":
		log.Sugar.Info("cache disabled")
		return cache.None{}
	case "redis":
		return cache.NewRedis(option.Cache.Redis.Address, option.Cache.Redis.Password, option.Cache.Redis.DB)
	default:
		log.Sugar.Info("cache memory")
		return cache.NewMemory()
	}
}
