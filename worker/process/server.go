package process

import (
	"Orbit/pkg/log"
	"context"
	"reflect"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var once sync.Once

type IServer interface {
	Init() error
	Setup(ctx context.Context) error
}

// SubServers 后台任务列表
type SubServers struct {
	ClaimSubscribe *ClaimSubscribe // 注册事件 / 批量重试认领
	RetriggerCron  *RetriggerCron  // 定时补偿
}

type Server struct {
	items []IServer
	SubServers
}

func NewServer(servers *SubServers) *Server {
	s := &Server{SubServers: *servers}
	s.binds(servers)
	return s
}

func (c *Server) binds(servers *SubServers) {
	elem := reflect.ValueOf(servers).Elem()
	for i := 0; i < elem.NumField(); i++ {
		if v, ok := elem.Field(i).Interface().(IServer); ok && !elem.Field(i).IsNil() {
			c.items = append(c.items, v)
		}
	}
}

func (c *Server) Start(eg *errgroup.Group, ctx context.Context) {
	once.Do(func() {
		for _, process := range c.items {
			if err := process.Init(); err != nil {
				log.L.Fatal("init worker process", zap.Error(err))
			}
		}

		for _, process := range c.items {
			serv := process
			eg.Go(func() error {
				return serv.Setup(ctx)
			})
		}
	})
}
