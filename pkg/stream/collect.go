package stream

import "context"

// Collect drains a new stream built from cfg and returns everything it
// emitted. On error the messages emitted before the failure are returned
// alongside it.
func Collect(ctx context.Context, cfg Config, opts ...Option) ([]Message, error) {
	s := New(cfg, opts...)
	defer s.Close()

	var out []Message
	for msg, err := range s.All(ctx) {
		if err != nil {
			return out, err
		}
		out = append(out, msg)
	}
	return out, nil
}
