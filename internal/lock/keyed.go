package lock

import (
	"sync"
)

// KeyedMutex 按约定ID串行化的互斥锁
// 同一约定上的所有变更（加入/退出/关闭、押注、竞速及其超时检查）必须拿到
// 同一把锁；不同约定互不影响。锁条目只增不减，约定量级下无回收必要
type KeyedMutex struct {
	locks sync.Map // uint64 -> *sync.Mutex
}

// NewKeyedMutex 创建按键互斥锁
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{}
}

// Lock 锁住指定键，返回解锁函数
func (k *KeyedMutex) Lock(key uint64) func() {
	v, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
