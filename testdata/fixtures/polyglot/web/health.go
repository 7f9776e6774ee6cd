package web

type Health struct{}

func (h *Health) Check() bool {
	return h.ping() == nil
}

func (h *Health) ping() error { return nil }
