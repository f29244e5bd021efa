// 本文件用于人工转接队列管理命令入口
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"campus-assist/internal/handoff"
)

const (
	exitCodeOK       = 0
	exitCodeUsage    = 1
	exitCodeStoreErr = 2
	exitCodeDegraded = 3
)

type cliOptions struct {
	storePath string
	action    string
	requestID string
}

func main() {
	os.Exit(runWithArgs(os.Args[1:], os.Stdout, os.Stderr))
}

func runWithArgs(args []string, stdout io.Writer, stderr io.Writer) int {
	options, err := parseOptions(args, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "queue-admin 参数错误: %v\n", err)
		return exitCodeUsage
	}
	code, err := execute(options, stdout)
	if err == nil {
		return code
	}
	fmt.Fprintf(stderr, "queue-admin 执行失败: %v\n", err)
	return code
}

func parseOptions(args []string, stderr io.Writer) (cliOptions, error) {
	fs := flag.NewFlagSet("queue-admin", flag.ContinueOnError)
	fs.SetOutput(stderr)

	storePath := fs.String("store", "data/handoff_queue.json", "队列存储文件路径")
	action := fs.String("action", "peek", "操作类型：peek|stats|assign|resolve|abandon|check|doctor")
	requestID := fs.String("id", "", "转接请求ID，状态流转操作时必填")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "用法：queue-admin -action <peek|stats|assign|resolve|abandon|check|doctor> [-id <requestID>] [-store <path>]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return cliOptions{}, err
	}

	options := cliOptions{
		storePath: strings.TrimSpace(*storePath),
		action:    strings.ToLower(strings.TrimSpace(*action)),
		requestID: strings.TrimSpace(*requestID),
	}
	if options.storePath == "" {
		fs.Usage()
		return cliOptions{}, fmt.Errorf("-store 不能为空")
	}

	switch options.action {
	case "peek", "stats", "check", "doctor":
		return options, nil
	case "assign", "resolve", "abandon":
		if options.requestID == "" {
			fs.Usage()
			return cliOptions{}, fmt.Errorf("%s 操作必须传入 -id", options.action)
		}
		return options, nil
	default:
		fs.Usage()
		return cliOptions{}, fmt.Errorf("不支持的 action: %s", options.action)
	}
}

func execute(options cliOptions, stdout io.Writer) (int, error) {
	manager, err := handoff.NewManager(options.storePath)
	if err != nil {
		return exitCodeStoreErr, err
	}

	switch options.action {
	case "peek":
		return handlePeek(manager, stdout)
	case "stats":
		return handleStats(manager, stdout)
	case "assign":
		return handleTransition(manager, options.requestID, handoff.StatusAssigned, stdout)
	case "resolve":
		return handleTransition(manager, options.requestID, handoff.StatusResolved, stdout)
	case "abandon":
		return handleTransition(manager, options.requestID, handoff.StatusAbandoned, stdout)
	case "check":
		return handleCheck(manager, stdout)
	case "doctor":
		return handleDoctor(manager, stdout)
	default:
		return exitCodeUsage, fmt.Errorf("不支持的 action: %s", options.action)
	}
}

func handlePeek(manager *handoff.Manager, stdout io.Writer) (int, error) {
	requests := manager.Active()
	fmt.Fprintf(stdout, "queue size: %d\n", len(requests))
	for index, request := range requests {
		fmt.Fprintf(stdout, "%d. id=%s user=%s status=%s priority=%s department=%s position=%d\n",
			index+1, request.ID, request.UserID, request.Status, request.Priority, request.Department, request.QueuePosition)
	}
	return exitCodeOK, nil
}

func handleStats(manager *handoff.Manager, stdout io.Writer) (int, error) {
	stats := manager.Stats()
	fmt.Fprintf(stdout, "pending=%d\n", stats.PendingTotal)
	fmt.Fprintf(stdout, "assigned=%d\n", stats.AssignedTotal)
	fmt.Fprintf(stdout, "resolved=%d\n", stats.ResolvedTotal)
	fmt.Fprintf(stdout, "abandoned=%d\n", stats.AbandonedTotal)
	fmt.Fprintf(stdout, "averageWaitSeconds=%d\n", stats.AverageWaitSeconds)
	for priority, count := range stats.ByPriority {
		fmt.Fprintf(stdout, "priority[%s]=%d\n", priority, count)
	}
	return exitCodeOK, nil
}

func handleTransition(manager *handoff.Manager, requestID string, next handoff.Status, stdout io.Writer) (int, error) {
	request, err := manager.Transition(requestID, next)
	if err != nil {
		return exitCodeStoreErr, err
	}
	fmt.Fprintf(stdout, "transition ok: id=%s status=%s\n", request.ID, request.Status)
	return exitCodeOK, nil
}

func handleCheck(manager *handoff.Manager, stdout io.Writer) (int, error) {
	stats := manager.HealthStats()
	queueSize := len(manager.Active())
	if degraded, reason := checkDegradedReason(stats); degraded {
		fmt.Fprintf(stdout, "status=degraded queueSize=%d store=%s reason=%s\n", queueSize, stats.StoreFile, reason)
		return exitCodeDegraded, nil
	}
	fmt.Fprintf(stdout, "status=ok queueSize=%d store=%s\n", queueSize, stats.StoreFile)
	return exitCodeOK, nil
}

func handleDoctor(manager *handoff.Manager, stdout io.Writer) (int, error) {
	stats := manager.HealthStats()
	fileExists := false
	fileSizeBytes := int64(0)
	fileModTime := "-"
	if info, err := os.Stat(stats.StoreFile); err == nil {
		fileExists = true
		fileSizeBytes = info.Size()
		fileModTime = info.ModTime().UTC().Format(time.RFC3339)
	} else if !os.IsNotExist(err) {
		return exitCodeStoreErr, fmt.Errorf("读取队列文件状态失败: %w", err)
	}

	queueSize := len(manager.Active())
	fmt.Fprintln(stdout, "doctor report")
	fmt.Fprintf(stdout, "store=%s\n", stats.StoreFile)
	fmt.Fprintf(stdout, "storeExists=%t\n", fileExists)
	fmt.Fprintf(stdout, "storeSizeBytes=%d\n", fileSizeBytes)
	fmt.Fprintf(stdout, "storeModTime=%s\n", fileModTime)
	fmt.Fprintf(stdout, "queueSize=%d\n", queueSize)
	fmt.Fprintf(stdout, "corruptFallbackTotal=%d\n", stats.CorruptFallbackTotal)
	fmt.Fprintf(stdout, "persistWriteFailureTotal=%d\n", stats.PersistWriteFailureTotal)
	if degraded, reason := checkDegradedReason(stats); degraded {
		fmt.Fprintln(stdout, "status=degraded")
		fmt.Fprintf(stdout, "reason=%s\n", reason)
		return exitCodeDegraded, nil
	}
	fmt.Fprintln(stdout, "status=ok")
	return exitCodeOK, nil
}

func checkDegradedReason(stats handoff.HealthStats) (bool, string) {
	if stats.CorruptFallbackTotal > 0 {
		return true, "检测到持久化文件损坏降级"
	}
	if stats.PersistWriteFailureTotal > 0 {
		return true, "检测到持久化写失败"
	}
	return false, ""
}
