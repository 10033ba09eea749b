package smssvc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kolisoft/makuta/core"
)

// gatewayService posts messages to an HTTP SMS gateway (most local telco
// aggregators expose this shape of API).
type gatewayService struct {
	url    string
	token  string
	sender string
	client *http.Client
	logger core.Logger
}

var _ core.SMSService = (*gatewayService)(nil)

func NewGatewayService(logger core.Logger) *gatewayService {
	return &gatewayService{
		url:    core.Conf.SMS.GatewayURL,
		token:  core.Conf.SMS.GatewayToken,
		sender: core.Conf.SMS.Sender,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

type gatewayPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
	Body string `json:"body"`
}

func (svc gatewayService) SendMessages(messages ...*core.SMSMessage) {
	for _, msg := range messages {
		msg := msg
		go func() {
			if msg.IsSendable() {
				svc.send(*msg)
			}
		}()
	}
}

func (svc gatewayService) send(msg core.SMSMessage) {
	payload, err := json.Marshal(gatewayPayload{From: svc.sender, To: msg.To, Body: msg.Body})
	if err != nil {
		svc.logger.Error(fmt.Sprintf("encoding sms: %v", err), err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, svc.url, bytes.NewReader(payload))
	if err != nil {
		svc.logger.Error(fmt.Sprintf("preparing sms request: %v", err), err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+svc.token)

	res, err := svc.client.Do(req)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("sending sms: %v", err), err)
		return
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode >= http.StatusBadRequest {
		svc.logger.Error(fmt.Sprintf("sending sms - status: %d", res.StatusCode))
	}
}
