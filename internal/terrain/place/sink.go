package place

import "errors"

// Collector keeps records in memory.
type Collector struct {
	Records []Record
}

func (c *Collector) Place(r Record) error {
	c.Records = append(c.Records, r)
	return nil
}

func (c *Collector) Clear() error {
	c.Records = c.Records[:0]
	return nil
}

// Multi fans every record out to each sink in order.
type Multi []Sink

func (m Multi) Place(r Record) error {
	for _, s := range m {
		if err := s.Place(r); err != nil {
			return err
		}
	}
	return nil
}

// Clear clears every member that supports it.
func (m Multi) Clear() error {
	var errs []error
	for _, s := range m {
		if cl, ok := s.(Clearer); ok {
			errs = append(errs, cl.Clear())
		}
	}
	return errors.Join(errs...)
}
