package bitmask

import (
	"math/bits"
	"strconv"
	"strings"
)

// BitMask 列序号位图，用于描述谓词或索引涉及的列
type BitMask struct {
	words []uint64
}

// New 创建能容纳 [0, width) 的位图，超出宽度的 Set 会自动扩容
func New(width int) *BitMask {
	if width <= 0 {
		return &BitMask{}
	}
	return &BitMask{words: make([]uint64, (width+63)/64)}
}

// Of 创建并设置指定位
func Of(width int, ns ...int) *BitMask {
	m := New(width)
	for _, n := range ns {
		m.Set(n)
	}
	return m
}

func (m *BitMask) grow(word int) {
	if word < len(m.words) {
		return
	}
	words := make([]uint64, word+1)
	copy(words, m.words)
	m.words = words
}

// Set 设置第 n 位，负数忽略
func (m *BitMask) Set(n int) *BitMask {
	if n < 0 {
		return m
	}
	m.grow(n / 64)
	m.words[n/64] |= 1 << uint(n%64)
	return m
}

// Clear 清除第 n 位
func (m *BitMask) Clear(n int) *BitMask {
	if n < 0 || n/64 >= len(m.words) {
		return m
	}
	m.words[n/64] &^= 1 << uint(n%64)
	return m
}

// IsSet 第 n 位是否被设置，越界返回 false
func (m *BitMask) IsSet(n int) bool {
	if m == nil || n < 0 || n/64 >= len(m.words) {
		return false
	}
	return m.words[n/64]&(1<<uint(n%64)) != 0
}

// OrWith 原地与 o 做或运算
func (m *BitMask) OrWith(o *BitMask) *BitMask {
	if o == nil {
		return m
	}
	if len(o.words) > 0 {
		m.grow(len(o.words) - 1)
	}
	for i, w := range o.words {
		m.words[i] |= w
	}
	return m
}

// Or 返回 m | o，不修改 m
func (m *BitMask) Or(o *BitMask) *BitMask {
	return m.Clone().OrWith(o)
}

// And 返回 m & o，不修改 m
func (m *BitMask) And(o *BitMask) *BitMask {
	r := m.Clone()
	for i := range r.words {
		if o == nil || i >= len(o.words) {
			r.words[i] = 0
			continue
		}
		r.words[i] &= o.words[i]
	}
	return r
}

// IsEqualTo 两个位图设置的位完全一致，与分配宽度无关
func (m *BitMask) IsEqualTo(o *BitMask) bool {
	n := max(m.len(), o.len())
	for i := 0; i < n; i++ {
		if m.word(i) != o.word(i) {
			return false
		}
	}
	return true
}

// IsSubsetOf m 中的位是否全部在 o 中
func (m *BitMask) IsSubsetOf(o *BitMask) bool {
	return m.And(o).IsEqualTo(m)
}

// IsEmpty 没有任何位被设置
func (m *BitMask) IsEmpty() bool {
	for i := 0; i < m.len(); i++ {
		if m.words[i] != 0 {
			return false
		}
	}
	return true
}

// Count 被设置的位数
func (m *BitMask) Count() int {
	c := 0
	for i := 0; i < m.len(); i++ {
		c += bits.OnesCount64(m.words[i])
	}
	return c
}

// Bits 按升序返回所有被设置的位
func (m *BitMask) Bits() []int {
	var result []int
	for i := 0; i < m.len(); i++ {
		w := m.words[i]
		for w != 0 {
			t := bits.TrailingZeros64(w)
			result = append(result, i*64+t)
			w &^= 1 << uint(t)
		}
	}
	return result
}

// Clone 深拷贝
func (m *BitMask) Clone() *BitMask {
	if m == nil {
		return &BitMask{}
	}
	words := make([]uint64, len(m.words))
	copy(words, m.words)
	return &BitMask{words: words}
}

func (m *BitMask) String() string {
	ns := m.Bits()
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = strconv.Itoa(n)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func (m *BitMask) len() int {
	if m == nil {
		return 0
	}
	return len(m.words)
}

func (m *BitMask) word(i int) uint64 {
	if i >= m.len() {
		return 0
	}
	return m.words[i]
}
