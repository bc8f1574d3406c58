package descriptors

import "fmt"

// Table is the dense array of provisioned descriptors, built in slot
// order before the guest entry point is invoked. FD_COUNT/FD_NAMES env
// vars are bound by the orchestrator, not here, immediately before user
// env is pushed.
type Table []File

// Provision builds a Table from cfg's slots, using material for any
// Listen/Connect slot that requests TLS. Slots are provisioned in order;
// a failure on any slot aborts the whole table and closes what was
// already opened. The returned names slice is FD_NAMES in table order.
func Provision(slots []Slot, material Certificate) (Table, []string, error) {
	table := make(Table, 0, len(slots))
	names := make([]string, 0, len(slots))

	for i, slot := range slots {
		f, err := provisionOne(slot, material)
		if err != nil {
			closeAll(table)
			return nil, nil, fmt.Errorf("descriptors: slot %d (%s): %w", i, slot.Name, err)
		}
		table = append(table, f)
		names = append(names, slot.Name)
	}
	return table, names, nil
}

func provisionOne(slot Slot, material Certificate) (File, error) {
	switch slot.Kind {
	case KindNull:
		return newNullFile(), nil
	case KindStdin:
		return newStdinFile(), nil
	case KindStdout:
		return newStdoutFile(), nil
	case KindStderr:
		return newStderrFile(), nil
	case KindListen:
		if slot.TLS {
			return Listen(slot.Addr, material)
		}
		return ListenPlain(slot.Addr)
	case KindConnect:
		if slot.TLS {
			return Connect(slot.Addr, material)
		}
		return ConnectPlain(slot.Addr)
	default:
		return nil, fmt.Errorf("unknown slot kind %v", slot.Kind)
	}
}

func closeAll(table Table) {
	for _, f := range table {
		if f != nil {
			_ = f.Close()
		}
	}
}

