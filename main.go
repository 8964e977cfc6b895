package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/doc-bridge/internal/config"
	"github.com/any-hub/doc-bridge/internal/logging"
	"github.com/any-hub/doc-bridge/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["transport"] = cfg.Engine.Transport
		fields["required_parts"] = cfg.Global.RequiredParts
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动顺序：配置 → 缓存 → 引擎 transport → bridge → 聚合器 → Fiber server，
	// 所有请求共享同一份缓存与 pending 表。
	comp, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化失败: %v\n", err)
		return 1
	}
	defer comp.Close()

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["transport"] = cfg.Engine.Transport
	fields["storage_path"] = cfg.Global.StoragePath
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   cfg.Global.ListenPort,
	}).Info("Fiber 服务启动")

	if err := comp.app.Listen(fmt.Sprintf(":%d", cfg.Global.ListenPort)); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("doc-bridge", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 DOC_BRIDGE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("DOC_BRIDGE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}
