package autoload

import (
	configx "github.com/sjin4861/deepcatch-agent/pkg/config"
	logx "github.com/sjin4861/deepcatch-agent/pkg/logger"
)

func init() {
	logx.Init(*configx.MustNew[logx.Config]("LOG"))
}
