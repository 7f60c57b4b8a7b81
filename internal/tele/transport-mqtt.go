package tele

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/temoto/gsmrelay/helpers"
	tele_config "github.com/temoto/gsmrelay/internal/tele/config"
	"github.com/temoto/gsmrelay/log2"
)

const defaultClientId = "gsmrelay"

type transportMqtt struct {
	log  *log2.Log
	m    mqtt.Client
	mopt *mqtt.ClientOptions

	topicPrefix  string
	topicConnect string
	topicState   string
	topicError   string
	topicRelay   string
	topicSummary string

	networkTimeout time.Duration
}

func (self *transportMqtt) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config) error {
	self.log = log

	clientId := teleConfig.ClientId
	if clientId == "" {
		clientId = defaultClientId
	}
	credFun := func() (string, string) {
		return clientId, teleConfig.MqttPassword
	}

	self.topicPrefix = clientId
	self.topicConnect = fmt.Sprintf("%s/c", self.topicPrefix)
	self.topicState = fmt.Sprintf("%s/w/1s", self.topicPrefix)
	self.topicError = fmt.Sprintf("%s/w/error", self.topicPrefix)
	self.topicRelay = fmt.Sprintf("%s/w/relay", self.topicPrefix)
	self.topicSummary = fmt.Sprintf("%s/w/summary", self.topicPrefix)
	keepAlive := helpers.IntSecondDefault(teleConfig.KeepaliveSec, 60*time.Second)
	pingTimeout := helpers.IntSecondDefault(teleConfig.PingTimeoutSec, 30*time.Second)
	self.networkTimeout = helpers.IntSecondDefault(teleConfig.NetworkTimeoutSec, 30*time.Second)

	self.mopt = mqtt.NewClientOptions().
		AddBroker(teleConfig.MqttBroker).
		SetBinaryWill(self.topicConnect, []byte{0x00}, 1, true).
		SetCleanSession(false).
		SetClientID(clientId).
		SetCredentialsProvider(credFun).
		SetKeepAlive(keepAlive).
		SetPingTimeout(pingTimeout).
		SetOrderMatters(false).
		SetAutoReconnect(true).
		SetOnConnectHandler(self.onConnectHandler).
		SetConnectionLostHandler(self.connectLostHandler)
	self.m = mqtt.NewClient(self.mopt)
	connToken := self.m.Connect()
	if connToken.WaitTimeout(self.networkTimeout) && connToken.Error() != nil {
		// not fatal, paho reconnects in background
		self.log.Errorf("tele mqtt connect broker=%s err=%v", teleConfig.MqttBroker, connToken.Error())
	}
	return nil
}

func (self *transportMqtt) CloseTele() {
	self.m.Publish(self.topicConnect, 1, true, []byte{0x00})
	self.m.Disconnect(uint(self.networkTimeout / time.Millisecond))
}

func (self *transportMqtt) SendState(payload []byte) bool {
	return self.publish(self.topicState, payload)
}

func (self *transportMqtt) SendError(payload []byte) bool {
	return self.publish(self.topicError, payload)
}

func (self *transportMqtt) SendRelay(payload []byte) bool {
	return self.publish(self.topicRelay, payload)
}

func (self *transportMqtt) SendSummary(payload []byte) bool {
	return self.publish(self.topicSummary, payload)
}

func (self *transportMqtt) publish(topic string, payload []byte) bool {
	token := self.m.Publish(topic, 1, false, payload)
	if token.WaitTimeout(self.networkTimeout) && token.Error() != nil {
		self.log.Errorf("tele mqtt publish topic=%s err=%v", topic, token.Error())
		return false
	}
	return true
}

func (self *transportMqtt) connectLostHandler(c mqtt.Client, err error) {
	self.log.Infof("tele mqtt disconnect err=%v", err)
}

func (self *transportMqtt) onConnectHandler(c mqtt.Client) {
	self.log.Infof("tele mqtt connect")
	c.Publish(self.topicConnect, 1, true, []byte{0x01})
}
