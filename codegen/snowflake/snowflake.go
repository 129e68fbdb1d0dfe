// Package snowflake 提供单调递增的 64 位 ID 生成器（雪花算法）。
//
// 审计记录的 Sequence 列依赖该生成器：同一进程内生成的 ID 严格递增，
// 因此可以作为审计轨迹的稳定排序键。
package snowflake

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// 起始时间戳 (2023-01-01 00:00:00 UTC)
	epoch int64 = 1672531200000

	workerIDBits     = 5
	datacenterIDBits = 5
	sequenceBits     = 12

	maxWorkerID     = -1 ^ (-1 << workerIDBits)     // 31
	maxDatacenterID = -1 ^ (-1 << datacenterIDBits) // 31
	maxSequence     = -1 ^ (-1 << sequenceBits)     // 4095

	workerIDShift      = sequenceBits
	datacenterIDShift  = sequenceBits + workerIDBits
	timestampLeftShift = sequenceBits + workerIDBits + datacenterIDBits

	DefaultDatacenterID int64 = 1
	DefaultWorkerID     int64 = 1
)

var (
	ErrNodeOutOfRange = errors.New("snowflake: datacenter or worker ID out of range")
	ErrClockBackwards = errors.New("snowflake: clock moved backwards, refusing to generate id")
)

// Generator Snowflake ID生成器
type Generator struct {
	mux           sync.Mutex
	datacenterID  int64
	workerID      int64
	sequence      int64
	lastTimestamp int64
	nowMillis     func() int64
}

// Parts 是 ID 拆解后的各组成部分。
type Parts struct {
	Timestamp    time.Time
	DatacenterID int64
	WorkerID     int64
	Sequence     int64
}

// NewGenerator 创建ID生成器
func NewGenerator(datacenterID, workerID int64) (*Generator, error) {
	if datacenterID < 0 || datacenterID > maxDatacenterID ||
		workerID < 0 || workerID > maxWorkerID {
		return nil, ErrNodeOutOfRange
	}
	return &Generator{
		datacenterID:  datacenterID,
		workerID:      workerID,
		lastTimestamp: -1,
		nowMillis:     func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// NextID 生成下一个ID
func (g *Generator) NextID() (int64, error) {
	g.mux.Lock()
	defer g.mux.Unlock()

	now := g.nowMillis()
	if now < g.lastTimestamp {
		return 0, ErrClockBackwards
	}

	if now == g.lastTimestamp {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			// 同一毫秒内序列号耗尽，自旋到下一毫秒
			for now <= g.lastTimestamp {
				now = g.nowMillis()
			}
		}
	} else {
		g.sequence = 0
	}
	g.lastTimestamp = now

	return ((now - epoch) << timestampLeftShift) |
		(g.datacenterID << datacenterIDShift) |
		(g.workerID << workerIDShift) |
		g.sequence, nil
}

// Parse 解析ID
func Parse(id int64) Parts {
	return Parts{
		Timestamp:    time.UnixMilli((id >> timestampLeftShift) + epoch).UTC(),
		DatacenterID: (id >> datacenterIDShift) & maxDatacenterID,
		WorkerID:     (id >> workerIDShift) & maxWorkerID,
		Sequence:     id & maxSequence,
	}
}

var defaultGenerator atomic.Pointer[Generator]

func init() {
	gen, _ := NewGenerator(DefaultDatacenterID, DefaultWorkerID)
	defaultGenerator.Store(gen)
}

// Default 返回进程级默认生成器。
func Default() *Generator {
	return defaultGenerator.Load()
}

// NextID 使用默认生成器生成ID
func NextID() (int64, error) {
	return Default().NextID()
}

// SetDefaultGenerator 按节点编号替换默认生成器
func SetDefaultGenerator(datacenterID, workerID int64) error {
	gen, err := NewGenerator(datacenterID, workerID)
	if err != nil {
		return err
	}
	defaultGenerator.Store(gen)
	return nil
}
