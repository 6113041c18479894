package sink

// Status is a point-in-time copy of a sink's observable state.
type Status struct {
	Name       string        `json:"name"`
	State      State         `json:"state"`
	Protocol   string        `json:"protocol"`
	Local      string        `json:"local"`
	TotalRx    uint64        `json:"total_rx"`
	Packets    uint64        `json:"packets"`
	Filtered   uint64        `json:"filtered"`
	Throughput float64       `json:"throughput_bps"`
	Samples    uint64        `json:"samples"`
	Window     int           `json:"window_size"`
	Interval   float64       `json:"interval_seconds"`
	Sessions   []SessionInfo `json:"sessions"`
}

// Status returns a snapshot. Like every other method it must run on the scheduler goroutine.
func (s *Sink) Status() Status {
	st := Status{
		Name:       s.cfg.Name,
		State:      s.state,
		Protocol:   string(s.cfg.Protocol),
		Local:      s.cfg.Local.String(),
		TotalRx:    s.total,
		Packets:    s.packets,
		Filtered:   s.filtered,
		Throughput: s.throughput,
		Samples:    s.window.Taken(),
		Window:     s.window.Size(),
		Interval:   s.cfg.Interval.Seconds(),
		Sessions:   make([]SessionInfo, 0, len(s.sessions)),
	}
	if s.socket != nil {
		st.Local = s.socket.LocalAddr().String()
	}
	for _, sess := range s.sessions {
		st.Sessions = append(st.Sessions, sess.info())
	}
	return st
}
