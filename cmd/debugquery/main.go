// Package main 提供 debugquery 命令行入口
//
// debugquery 是调试代理的 P2P 查询客户端：连接一个正在运行的调试代理，
// 请求其调试端点并打印响应。用于目标进程的 HTTP 端口不可直达时
// （跨主机、容器或 NAT 之后）远程查看调试信息。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dep2p/go-dep2p/pkg/lib/log"
	dep2ptypes "github.com/dep2p/go-dep2p/pkg/types"

	"github.com/dep2p/go-debugagent"
	"github.com/dep2p/go-debugagent/pkg/types"
	"github.com/dep2p/go-debugagent/transport/debugp2p"
)

var logger = log.Logger("debugagent/cmd")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
var (
	// ─────────────────────────────────────────────────────────────────────
	// 目标节点（二选一）
	// ─────────────────────────────────────────────────────────────────────
	ticket = flag.String("ticket", "", "目标节点连接票据（dep2p:// 开头）")
	remote = flag.String("remote", "", "目标节点 ID（已知对端时可替代票据）")

	// ─────────────────────────────────────────────────────────────────────
	// 请求参数
	// ─────────────────────────────────────────────────────────────────────
	path     = flag.String("path", "/", "调试端点路径")
	rawQuery = flag.String("query", "", "查询参数，形如 k=v,k2=v2")
	timeout  = flag.Duration("timeout", 30*time.Second, "连接与查询的总超时")
	outFile  = flag.String("out", "", "把响应体写入文件（二进制响应建议使用）")

	// ─────────────────────────────────────────────────────────────────────
	// 信息显示
	// ─────────────────────────────────────────────────────────────────────
	showVersion = flag.Bool("version", false, "显示版本信息")
	showHelp    = flag.Bool("help", false, "显示帮助信息")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	// 显示版本
	if *showVersion {
		printVersion()
		return nil
	}

	// 显示帮助
	if *showHelp {
		printHelp()
		return nil
	}

	if *ticket == "" && *remote == "" {
		return fmt.Errorf("缺少目标节点，请通过 -ticket 或 -remote 指定（-help 查看用法）")
	}

	peerID, target, err := resolveTarget()
	if err != nil {
		return err
	}

	// 客户端自身不对外提供端点，路由器仅用于满足传输的装配要求
	router := debugagent.NewRouter()
	defer router.Close()

	tr, err := debugp2p.New(router)
	if err != nil {
		return fmt.Errorf("创建传输失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	fmt.Println("正在启动查询客户端...")
	if err := tr.Start(ctx); err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = tr.Stop(stopCtx)
	}()

	fmt.Printf("正在连接目标节点 %s...\n", log.TruncateID(peerID, 8))
	if err := tr.Connect(ctx, target); err != nil {
		return fmt.Errorf("连接失败: %w", err)
	}

	logger.Info("发起调试查询", "peer", log.TruncateID(peerID, 8), "path", *path)
	resp, err := tr.Query(ctx, peerID, types.NewRequest(*path, parseQuery(*rawQuery), nil, nil))
	if err != nil {
		return fmt.Errorf("查询失败: %w", err)
	}

	return printResponse(resp)
}

// resolveTarget 解析目标节点
//
// 优先使用 -remote 给出的节点 ID，否则从连接票据中解出。
// 连接目标优先用票据（携带地址提示），仅有节点 ID 时依赖网络发现。
func resolveTarget() (peerID, target string, err error) {
	if *remote != "" {
		peerID = *remote
	} else {
		decoded, derr := dep2ptypes.DecodeConnectionTicket(*ticket)
		if derr != nil {
			return "", "", fmt.Errorf("解析连接票据失败: %w", derr)
		}
		peerID = decoded.NodeID
	}

	target = *ticket
	if target == "" {
		target = peerID
	}
	return peerID, target, nil
}

// parseQuery 解析 k=v,k2=v2 形式的查询参数
func parseQuery(s string) map[string]string {
	if s == "" {
		return nil
	}
	params := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		if k, v, ok := strings.Cut(pair, "="); ok {
			params[k] = v
		}
	}
	return params
}

// printResponse 打印响应
//
// 文本类响应直接输出，二进制响应默认只提示大小，除非指定 -out 落盘。
func printResponse(resp *types.Response) error {
	fmt.Println()
	fmt.Printf("状态: %d %s\n", int(resp.Status), resp.Status)
	fmt.Printf("类型: %s\n", resp.ContentType)

	if *outFile != "" {
		if err := os.WriteFile(*outFile, resp.Body, 0600); err != nil {
			return fmt.Errorf("写入输出文件失败: %w", err)
		}
		fmt.Printf("响应体已写入 %s（%d 字节）\n", *outFile, len(resp.Body))
		return nil
	}

	if isTextual(resp.ContentType) {
		fmt.Println()
		fmt.Println(string(resp.Body))
		return nil
	}

	fmt.Printf("响应体为二进制数据（%d 字节），可用 -out 写入文件\n", len(resp.Body))
	return nil
}

// isTextual 判断内容类型是否适合直接打印
func isTextual(ct types.ContentType) bool {
	switch ct {
	case types.ContentTypeJSON, types.ContentTypeHTML, types.ContentTypeText:
		return true
	}
	return false
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("debugquery %s\n", debugagent.Version)
	if debugagent.GitCommit != "" {
		fmt.Printf("  commit: %s\n", debugagent.GitCommit)
	}
	if debugagent.BuildDate != "" {
		fmt.Printf("  built:  %s\n", debugagent.BuildDate)
	}
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("debugquery - 调试代理 P2P 查询客户端")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  debugquery [选项]")
	fmt.Println()
	fmt.Println("选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("═══════════════════════════════════════════════════════════════════════════")
	fmt.Println("使用示例")
	fmt.Println("═══════════════════════════════════════════════════════════════════════════")
	fmt.Println()
	fmt.Println("  # 查看目标节点的端点索引")
	fmt.Println("  debugquery -ticket dep2p://... -path / -query depth=full")
	fmt.Println()
	fmt.Println("  # 请求某个调试端点")
	fmt.Println("  debugquery -ticket dep2p://... -path /echo -query name=Kyle")
	fmt.Println()
	fmt.Println("  # 查看系统路由（需目标启用 WithSystemRoutes）")
	fmt.Println("  debugquery -ticket dep2p://... -path /sys/health")
	fmt.Println("  debugquery -ticket dep2p://... -path /sys/requests")
	fmt.Println()
	fmt.Println("  # 二进制响应写入文件")
	fmt.Println("  debugquery -ticket dep2p://... -path /heapdump -out heap.bin")
	fmt.Println()
	fmt.Println("  # 已知节点 ID 时直接指定（依赖网络发现定位地址）")
	fmt.Println("  debugquery -remote <NodeID> -path /sys/runtime")
}
