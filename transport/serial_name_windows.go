//go:build windows

package transport

import "fmt"

func defaultSerialName(index int) string {
	return fmt.Sprintf("COM%d", index)
}
