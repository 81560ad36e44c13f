package event

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func TestFirstOrderIdIsEncoded(t *testing.T) {
	ev := Event{
		Kind:      OrderCreated,
		Token:     common.HexToAddress("0x1000000000000000000000000000000000000001"),
		Amount:    uint256.NewInt(100),
		OrderID:   OrderRef(0),
		Payment:   uint256.NewInt(20),
		Remaining: uint256.NewInt(100),
	}
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"orderId":0`) {
		t.Errorf("order 0 event lost its id: %s", data)
	}

	var back Event
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.OrderID == nil || *back.OrderID != 0 {
		t.Errorf("round trip OrderID = %v, want 0", back.OrderID)
	}
}

func TestTransferEventHasNoOrderId(t *testing.T) {
	data, err := json.Marshal(Event{Kind: Transfer, Amount: uint256.NewInt(1)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "orderId") {
		t.Errorf("transfer event carries an order id: %s", data)
	}
}
