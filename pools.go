package persist

import "sync"

var archiveBytesPool = &sync.Pool{
	New: func() any {
		return make([]byte, 0, 65536)
	},
}

func getBuilder() *bytesBuilder {
	return &bytesBuilder{archiveBytesPool.Get().([]byte)[:0]}
}

func releaseBuilder(bb *bytesBuilder) {
	if cap(bb.Buf) <= 1<<20 {
		archiveBytesPool.Put(bb.Buf[:0])
	}
	bb.Buf = nil
}
