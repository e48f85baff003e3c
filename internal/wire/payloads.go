package wire

// This file implements Marshal/Unmarshal for every payload type in
// message.go, on top of the writer/reader cursor helpers in codec.go.

func writeUpdate(w *writer, u Update) {
	w.u32(uint32(u.Kind))
	w.u32(uint32(u.Loc1))
	w.u64slice(u.Operands)
	w.u64slice(u.Qts)
}

func readUpdate(r *reader) Update {
	return Update{
		Kind:     UpdateKind(r.u32()),
		Loc1:     int(r.u32()),
		Operands: r.u64slice(),
		Qts:      r.u64slice(),
	}
}

func writeUpdates(w *writer, us []Update) {
	w.u32(uint32(len(us)))
	for _, u := range us {
		writeUpdate(w, u)
	}
}

// minUpdateBytes is the smallest a marshaled Update can be: Kind and
// Loc1 (4 bytes each) plus an empty Operands and Qts length prefix (4
// bytes each). readUpdates uses it to reject a bogus count before
// allocating the Update slice.
const minUpdateBytes = 16

func readUpdates(r *reader) []Update {
	n := int(r.u32())
	if n < 0 || !r.need(n*minUpdateBytes) {
		return nil
	}
	out := make([]Update, n)
	for i := range out {
		out[i] = readUpdate(r)
	}
	return out
}

// TxInit

func (m TxInit) Marshal() []byte {
	w := &writer{}
	w.u32(uint32(m.VTID))
	w.u64slice(m.Timestamp)
	w.u64(m.FirstQts)
	w.u64(m.TxID)
	writeUpdates(w, m.Writes)
	return w.buf
}

func UnmarshalTxInit(buf []byte) (TxInit, error) {
	r := newReader(buf)
	m := TxInit{
		VTID:      int(r.u32()),
		Timestamp: r.u64slice(),
		FirstQts:  r.u64(),
		TxID:      r.u64(),
		Writes:    readUpdates(r),
	}
	return m, r.err
}

// TxDone

func (m TxDone) Marshal() []byte {
	w := &writer{}
	w.u64(m.TxID)
	return w.buf
}

func UnmarshalTxDone(buf []byte) (TxDone, error) {
	r := newReader(buf)
	m := TxDone{TxID: r.u64()}
	return m, r.err
}

// NodeProg

func (m NodeProg) Marshal() []byte {
	w := &writer{}
	w.str(m.ProgType)
	w.bool(m.Global)
	w.u32(uint32(m.VTID))
	w.u64slice(m.Timestamp)
	w.u64(m.ReqID)
	w.u64slice(m.Args)
	return w.buf
}

func UnmarshalNodeProg(buf []byte) (NodeProg, error) {
	r := newReader(buf)
	m := NodeProg{
		ProgType:  r.str(),
		Global:    r.boolean(),
		VTID:      int(r.u32()),
		Timestamp: r.u64slice(),
		ReqID:     r.u64(),
		Args:      r.u64slice(),
	}
	return m, r.err
}

// NodeProgReturn

func (m NodeProgReturn) Marshal() []byte {
	w := &writer{}
	w.str(m.ProgType)
	w.u64(m.ReqID)
	w.bytes(m.Payload)
	return w.buf
}

func UnmarshalNodeProgReturn(buf []byte) (NodeProgReturn, error) {
	r := newReader(buf)
	m := NodeProgReturn{
		ProgType: r.str(),
		ReqID:    r.u64(),
		Payload:  r.bytes(),
	}
	return m, r.err
}

// VTNop

func (m VTNop) Marshal() []byte {
	w := &writer{}
	w.u32(uint32(m.VTID))
	w.u64slice(m.Clock)
	w.u64slice(m.Qts)
	w.u64(m.ReqID)
	w.u64(m.MaxDoneID)
	w.u64slice(m.MaxDoneClock)
	w.u64(m.ShardNodeCnt)
	w.u32(uint32(len(m.DoneReqs)))
	for _, d := range m.DoneReqs {
		w.str(d.ProgType)
		w.u64(d.ReqID)
	}
	return w.buf
}

func UnmarshalVTNop(buf []byte) (VTNop, error) {
	r := newReader(buf)
	m := VTNop{
		VTID:         int(r.u32()),
		Clock:        r.u64slice(),
		Qts:          r.u64slice(),
		ReqID:        r.u64(),
		MaxDoneID:    r.u64(),
		MaxDoneClock: r.u64slice(),
		ShardNodeCnt: r.u64(),
	}
	n := int(r.u32())
	m.DoneReqs = make([]DoneReq, n)
	for i := range m.DoneReqs {
		m.DoneReqs[i] = DoneReq{ProgType: r.str(), ReqID: r.u64()}
	}
	return m, r.err
}

// VTNopAck

func (m VTNopAck) Marshal() []byte {
	w := &writer{}
	w.u32(uint32(m.ShardID))
	w.u64(m.NodeCount)
	return w.buf
}

func UnmarshalVTNopAck(buf []byte) (VTNopAck, error) {
	r := newReader(buf)
	m := VTNopAck{ShardID: int(r.u32()), NodeCount: r.u64()}
	return m, r.err
}

// VTClockUpdate / Ack

func (m VTClockUpdate) Marshal() []byte {
	w := &writer{}
	w.u32(uint32(m.FromVT))
	w.u64(m.Value)
	return w.buf
}

func UnmarshalVTClockUpdate(buf []byte) (VTClockUpdate, error) {
	r := newReader(buf)
	m := VTClockUpdate{FromVT: int(r.u32()), Value: r.u64()}
	return m, r.err
}

func (m VTClockUpdateAck) Marshal() []byte {
	w := &writer{}
	w.u32(uint32(m.FromVT))
	return w.buf
}

func UnmarshalVTClockUpdateAck(buf []byte) (VTClockUpdateAck, error) {
	r := newReader(buf)
	m := VTClockUpdateAck{FromVT: int(r.u32())}
	return m, r.err
}

// LoadedGraph

func (m LoadedGraph) Marshal() []byte {
	w := &writer{}
	w.u32(uint32(m.ShardID))
	w.i64(m.LoadedAt)
	return w.buf
}

func UnmarshalLoadedGraph(buf []byte) (LoadedGraph, error) {
	r := newReader(buf)
	m := LoadedGraph{ShardID: int(r.u32()), LoadedAt: r.i64()}
	return m, r.err
}

// ClientTxInit / Fail / Done

func (m ClientTxInit) Marshal() []byte {
	w := &writer{}
	w.u64(m.ClientID)
	writeUpdates(w, m.Writes)
	return w.buf
}

func UnmarshalClientTxInit(buf []byte) (ClientTxInit, error) {
	r := newReader(buf)
	m := ClientTxInit{ClientID: r.u64(), Writes: readUpdates(r)}
	return m, r.err
}

func (m ClientTxFail) Marshal() []byte {
	w := &writer{}
	w.str(m.Reason)
	return w.buf
}

func UnmarshalClientTxFail(buf []byte) (ClientTxFail, error) {
	r := newReader(buf)
	m := ClientTxFail{Reason: r.str()}
	return m, r.err
}

func (m ClientTxDone) Marshal() []byte {
	w := &writer{}
	w.u64(m.TxID)
	return w.buf
}

func UnmarshalClientTxDone(buf []byte) (ClientTxDone, error) {
	r := newReader(buf)
	m := ClientTxDone{TxID: r.u64()}
	return m, r.err
}

// ClientNodeProgReq

func (m ClientNodeProgReq) Marshal() []byte {
	w := &writer{}
	w.str(m.ProgType)
	w.u64slice(m.Args)
	return w.buf
}

func UnmarshalClientNodeProgReq(buf []byte) (ClientNodeProgReq, error) {
	r := newReader(buf)
	m := ClientNodeProgReq{ProgType: r.str(), Args: r.u64slice()}
	return m, r.err
}

// MigrationRelay

func (m MigrationRelay) Marshal() []byte {
	w := &writer{}
	w.str(m.CorrelationID)
	w.bytes(m.Payload)
	return w.buf
}

func UnmarshalMigrationRelay(buf []byte) (MigrationRelay, error) {
	r := newReader(buf)
	m := MigrationRelay{CorrelationID: r.str(), Payload: r.bytes()}
	return m, r.err
}

// MsgCount

func (m MsgCount) Marshal() []byte {
	w := &writer{}
	w.u32(uint32(len(m.Counts)))
	for shard, cnt := range m.Counts {
		w.u32(uint32(shard))
		w.u64(cnt)
	}
	return w.buf
}

func UnmarshalMsgCount(buf []byte) (MsgCount, error) {
	r := newReader(buf)
	n := int(r.u32())
	m := MsgCount{Counts: make(map[int]uint64, n)}
	for i := 0; i < n; i++ {
		shard := int(r.u32())
		cnt := r.u64()
		m.Counts[shard] = cnt
	}
	return m, r.err
}
