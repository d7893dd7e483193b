package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/filechat/backend/internal/config"
	"github.com/zhouzirui/filechat/backend/internal/logging"
	"github.com/zhouzirui/filechat/backend/internal/model/chat"
	"github.com/zhouzirui/filechat/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/filechat/backend/internal/service/chat"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Warnf("无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("配置加载失败: %v", err)
	}
	if err := logging.Setup(cfg.Log); err != nil {
		logrus.Fatalf("日志配置失败: %v", err)
	}

	text := flag.String("prompt", "", "用户输入文本")
	filePath := flag.String("file", "", "附件路径，内容按 UTF-8 有损解码后附加到提示词")
	timeout := flag.Duration("timeout", 0, "请求超时时间，默认使用 COMPLETION_TIMEOUT")
	showPrompt := flag.Bool("show-prompt", false, "打印发送给后端的完整提示词")

	flag.Parse()

	var fileText string
	if *filePath != "" {
		raw, err := os.ReadFile(*filePath)
		if err != nil {
			logrus.Fatalf("读取附件失败: %v", err)
		}
		fileText = chatservice.DecodeText(raw)
	}

	if *text == "" && fileText == "" {
		flag.Usage()
		logrus.Fatal("请通过 -prompt 或 -file 提供输入")
	}

	if *timeout > 0 {
		cfg.Completion.Timeout = *timeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Completion.Timeout+5*time.Second)
	defer cancel()

	completer, err := ai.NewCompleter(ctx, cfg.Completion)
	if err != nil {
		logrus.Fatalf("初始化补全客户端失败: %v", err)
	}

	prompt := chat.BuildPrompt(*text, fileText)
	if *showPrompt {
		fmt.Fprintf(os.Stderr, "--- prompt ---\n%s\n--------------\n", prompt)
	}

	logrus.WithFields(logrus.Fields{
		"provider": cfg.Completion.Provider,
		"driver":   cfg.Completion.Driver,
		"model":    cfg.Completion.Model,
	}).Info("开始请求补全")

	start := time.Now()
	reply := ai.Reply(ctx, completer, prompt)
	logrus.Infof("补全完成，耗时 %s", time.Since(start).Round(time.Millisecond))

	fmt.Printf("%s: %s\n", cfg.Completion.Label, reply)
}
