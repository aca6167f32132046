package batch

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/warp/payments-engine/payments"
)

var header = []string{"client", "available", "held", "total", "locked"}

// WriteSnapshot renders clients as CSV in the order given. Engine.Clients
// already returns them by ascending id.
func WriteSnapshot(w io.Writer, clients []payments.ClientSnapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, c := range clients {
		row := []string{
			strconv.FormatUint(uint64(c.Client), 10),
			c.Available.String(),
			c.Held.String(),
			c.Total.String(),
			strconv.FormatBool(c.Locked),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
