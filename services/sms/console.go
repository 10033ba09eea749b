package smssvc

import (
	"log"
	"sync"

	"github.com/kolisoft/makuta/core"
)

var (
	SentMessages = make([]core.SMSMessage, 0)
	mu           sync.Mutex
)

type consoleService struct {
	sender        string
	disableOutput bool
}

var _ core.SMSService = (*consoleService)(nil)

func NewConsoleService() core.SMSService {
	return &consoleService{sender: core.Conf.SMS.Sender}
}

func (svc consoleService) SendMessages(messages ...*core.SMSMessage) {
	for _, msg := range messages {
		go svc.sendMessage(msg)
	}
}

func (svc consoleService) sendMessage(msg *core.SMSMessage) {
	if !msg.IsSendable() {
		return
	}
	if !svc.disableOutput {
		log.Printf("SMS from %s to %s: %s", svc.sender, msg.To, msg.Body)
	}
	mu.Lock()
	SentMessages = append(SentMessages, *msg)
	mu.Unlock()
}

type consoleServiceMock struct {
	consoleService
}

func NewConsoleServiceMock() core.SMSService {
	return &consoleServiceMock{consoleService{sender: core.Conf.SMS.Sender, disableOutput: true}}
}

func (svc *consoleServiceMock) SendMessages(messages ...*core.SMSMessage) {
	for _, msg := range messages {
		// run synchronously
		svc.sendMessage(msg)
	}
}
