package dict

import (
	"github.com/hdt3213/redict/datastruct/sds"
)

const statsVectLen = 50

// TableStats describes the chain length distribution of one generation
type TableStats struct {
	TableID      int
	Size         uint64
	Used         uint64
	Slots        uint64
	MaxChainLen  uint64
	TotalChain   uint64
	ChainLengths [statsVectLen]uint64
}

// Stats describes both generations of a dict, Rehashing is nil when not rehashing
type Stats struct {
	Main      TableStats
	Rehashing *TableStats
}

func (d *Dict[K, V]) tableStats(id int) TableStats {
	ht := &d.ht[id]
	s := TableStats{
		TableID: id,
		Size:    ht.size,
		Used:    ht.used,
	}
	for _, he := range ht.buckets {
		if he == nil {
			s.ChainLengths[0]++
			continue
		}
		s.Slots++
		var chainLen uint64
		for ; he != nil; he = he.next {
			chainLen++
		}
		if chainLen < statsVectLen {
			s.ChainLengths[chainLen]++
		} else {
			s.ChainLengths[statsVectLen-1]++
		}
		if chainLen > s.MaxChainLen {
			s.MaxChainLen = chainLen
		}
		s.TotalChain += chainLen
	}
	return s
}

// Stats collects chain statistics, it walks every bucket
func (d *Dict[K, V]) Stats() *Stats {
	st := &Stats{Main: d.tableStats(0)}
	if d.IsRehashing() {
		rehashing := d.tableStats(1)
		st.Rehashing = &rehashing
	}
	return st
}

func (s *TableStats) writeTo(buf *sds.Sds) {
	if s.Used == 0 {
		_ = buf.CatFmt("No stats available for empty dictionaries\n")
		return
	}
	name := "main hash table"
	if s.TableID == 1 {
		name = "rehashing target"
	}
	_ = buf.CatFmt("Hash table %d stats (%s):\n", s.TableID, name)
	_ = buf.CatFmt(" table size: %d\n", s.Size)
	_ = buf.CatFmt(" number of elements: %d\n", s.Used)
	_ = buf.CatFmt(" different slots: %d\n", s.Slots)
	_ = buf.CatFmt(" max chain length: %d\n", s.MaxChainLen)
	_ = buf.CatFmt(" avg chain length (counted): %.02f\n", float64(s.TotalChain)/float64(s.Slots))
	_ = buf.CatFmt(" avg chain length (computed): %.02f\n", float64(s.Used)/float64(s.Slots))
	_ = buf.CatFmt(" Chain length distribution:\n")
	for i, n := range s.ChainLengths {
		if n == 0 {
			continue
		}
		_ = buf.CatFmt("   %s%d: %d (%.02f%%)\n", lastBucketPrefix(i), i, n, float64(n)/float64(s.Size)*100)
	}
}

func lastBucketPrefix(i int) string {
	if i == statsVectLen-1 {
		return ">= "
	}
	return ""
}

// String renders the statistics in the format of DEBUG HTSTATS
func (s *Stats) String() string {
	buf := sds.Empty()
	s.Main.writeTo(buf)
	if s.Rehashing != nil {
		s.Rehashing.writeTo(buf)
	}
	return buf.String()
}
