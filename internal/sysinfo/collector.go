// 本文件用于采集健康检查所需的系统资源快照
package sysinfo

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

const defaultCacheTTL = 1 * time.Second

// ResourceSnapshot 表示一次系统资源快照
type ResourceSnapshot struct {
	Host          string  `json:"host"`
	OS            string  `json:"os"`
	Uptime        string  `json:"uptime"`
	Load          string  `json:"load"`
	CPUUsedPct    float64 `json:"cpuUsedPct"`
	MemoryUsedPct float64 `json:"memoryUsedPct"`
	MemoryUsed    string  `json:"memoryUsed"`
	MemoryTotal   string  `json:"memoryTotal"`
	DiskUsedPct   float64 `json:"diskUsedPct"`
	DiskUsed      string  `json:"diskUsed"`
	DiskTotal     string  `json:"diskTotal"`
	CollectedAt   string  `json:"collectedAt"`
}

type cpuSample struct {
	total float64
	idle  float64
}

// Collector 负责采集系统资源快照 带短时缓存避免高频采样
type Collector struct {
	mu       sync.Mutex
	cacheTTL time.Duration
	dataDir  string

	lastSnapshot   ResourceSnapshot
	lastSnapshotAt time.Time
	lastCPU        cpuSample
}

// NewCollector 创建系统信息采集器 dataDir 用于磁盘占用统计
func NewCollector(dataDir string) *Collector {
	if dataDir == "" {
		dataDir = "."
	}
	return &Collector{
		cacheTTL: defaultCacheTTL,
		dataDir:  dataDir,
	}
}

// Snapshot 返回系统资源快照
func (c *Collector) Snapshot() ResourceSnapshot {
	now := time.Now()

	c.mu.Lock()
	if now.Sub(c.lastSnapshotAt) < c.cacheTTL && !c.lastSnapshotAt.IsZero() {
		snapshot := c.lastSnapshot
		c.mu.Unlock()
		return snapshot
	}
	prevCPU := c.lastCPU
	c.mu.Unlock()

	snapshot := ResourceSnapshot{
		OS:          runtime.GOOS,
		Load:        "--",
		Uptime:      "--",
		CollectedAt: now.UTC().Format(time.RFC3339),
	}

	if info, err := host.Info(); err == nil {
		snapshot.Host = info.Hostname
		snapshot.OS = fmt.Sprintf("%s %s", info.Platform, info.PlatformVersion)
		snapshot.Uptime = formatDurationCN(time.Duration(info.Uptime) * time.Second)
	}
	if avg, err := load.Avg(); err == nil {
		snapshot.Load = fmt.Sprintf("%.2f / %.2f / %.2f", avg.Load1, avg.Load5, avg.Load15)
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		snapshot.MemoryUsedPct = clampPct(vm.UsedPercent)
		snapshot.MemoryUsed = formatBytes(float64(vm.Used))
		snapshot.MemoryTotal = formatBytes(float64(vm.Total))
	}
	if usage, err := disk.Usage(c.dataDir); err == nil {
		snapshot.DiskUsedPct = clampPct(usage.UsedPercent)
		snapshot.DiskUsed = formatBytes(float64(usage.Used))
		snapshot.DiskTotal = formatBytes(float64(usage.Total))
	}

	usage, sample := collectCPUUsage(prevCPU)
	snapshot.CPUUsedPct = usage

	c.mu.Lock()
	c.lastSnapshot = snapshot
	c.lastSnapshotAt = now
	c.lastCPU = sample
	c.mu.Unlock()
	return snapshot
}

// collectCPUUsage 基于两次采样的时间片差值计算整体 CPU 使用率
func collectCPUUsage(prev cpuSample) (float64, cpuSample) {
	times, err := cpu.Times(false)
	if err != nil || len(times) == 0 {
		return 0, prev
	}
	t := times[0]
	total := t.User + t.System + t.Idle + t.Nice + t.Iowait + t.Irq + t.Softirq + t.Steal
	sample := cpuSample{total: total, idle: t.Idle + t.Iowait}
	deltaTotal := sample.total - prev.total
	deltaIdle := sample.idle - prev.idle
	if prev.total == 0 || deltaTotal <= 0 {
		return 0, sample
	}
	usage := (deltaTotal - deltaIdle) / deltaTotal * 100
	return clampPct(usage), sample
}

func formatBytes(value float64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
		tb = gb * 1024
	)
	switch {
	case value >= tb:
		return fmt.Sprintf("%.1f TB", value/tb)
	case value >= gb:
		return fmt.Sprintf("%.1f GB", value/gb)
	case value >= mb:
		return fmt.Sprintf("%.1f MB", value/mb)
	case value >= kb:
		return fmt.Sprintf("%.1f KB", value/kb)
	case value > 0:
		return fmt.Sprintf("%.0f B", value)
	default:
		return "0 B"
	}
}

func formatDurationCN(d time.Duration) string {
	if d <= 0 {
		return "--"
	}
	totalMinutes := int(d.Minutes())
	if totalMinutes <= 0 {
		return "1分"
	}
	days := totalMinutes / (60 * 24)
	hours := (totalMinutes / 60) % 24
	mins := totalMinutes % 60
	if days > 0 {
		return fmt.Sprintf("%d天 %d小时 %d分", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%d小时 %d分", hours, mins)
	}
	return fmt.Sprintf("%d分", mins)
}

func clampPct(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}
