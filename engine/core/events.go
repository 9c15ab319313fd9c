package core

import "sync"

// EventContext carries the payload of a fired event. Only the fields relevant
// to the event code are populated.
type EventContext struct {
	// Virtual path, map id or job name the event is about.
	Subject string
	// Optional detail such as the asset kind or the file that changed.
	Detail string
	Count  int
	Err    error
}

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the studio down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// A resource finished uploading and is resident.
	/* Context usage:
	 * Subject = virtual path, Detail = asset kind
	 */
	EVENT_CODE_RESOURCE_LOADED SystemEventCode = 0x02

	// A resource failed to decode or upload.
	/* Context usage:
	 * Subject = virtual path, Err = cause
	 */
	EVENT_CODE_RESOURCE_FAILED SystemEventCode = 0x03

	// Every task of a job has run.
	/* Context usage:
	 * Subject = job name, Count = task count
	 */
	EVENT_CODE_JOB_COMPLETED SystemEventCode = 0x04

	// A watched file under the game root changed.
	/* Context usage:
	 * Subject = virtual path (may be empty), Detail = file path
	 */
	EVENT_CODE_ASSET_CHANGED SystemEventCode = 0x05

	// A map finished loading its document; resources may still stream in.
	EVENT_CODE_MAP_LOADED SystemEventCode = 0x06

	// A map or generator group was written to disk.
	EVENT_CODE_MAP_SAVED SystemEventCode = 0x07

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

// This should be more than enough codes...
const MAX_MESSAGE_CODES = 16384

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

type eventSystemState struct {
	mu         sync.RWMutex
	registered map[SystemEventCode][]*registeredEvent
}

var onceEvent sync.Once
var eventState *eventSystemState

// Should return true if handled.
type FnOnEvent func(code SystemEventCode, sender interface{}, listenerInst interface{}, data EventContext) bool

func EventInitialize() bool {
	initialized := false
	onceEvent.Do(func() {
		eventState = &eventSystemState{
			registered: make(map[SystemEventCode][]*registeredEvent),
		}
		initialized = true
	})
	return initialized
}

// EventShutdown drops every registration. The system stays usable.
func EventShutdown() error {
	if eventState == nil {
		return nil
	}
	eventState.mu.Lock()
	defer eventState.mu.Unlock()
	eventState.registered = make(map[SystemEventCode][]*registeredEvent)
	return nil
}

/**
 * Register to listen for when events are sent with the provided code. A listener
 * can only be registered once per code; duplicates return false.
 */
func EventRegister(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	if eventState == nil || code < 0 || code >= MAX_MESSAGE_CODES || onEvent == nil {
		return false
	}
	eventState.mu.Lock()
	defer eventState.mu.Unlock()

	for _, e := range eventState.registered[code] {
		if e.listener == listener {
			LogWarn("event code %d already has this listener registered", code)
			return false
		}
	}
	eventState.registered[code] = append(eventState.registered[code], &registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

/**
 * Unregister from listening for when events are sent with the provided code. If no matching
 * registration is found, this function returns false.
 */
func EventUnregister(code SystemEventCode, listener interface{}) bool {
	if eventState == nil {
		return false
	}
	eventState.mu.Lock()
	defer eventState.mu.Unlock()

	events := eventState.registered[code]
	for i, e := range events {
		if e.listener == listener {
			eventState.registered[code] = append(events[:i], events[i+1:]...)
			return true
		}
	}
	return false
}

/**
 * Fires an event to listeners of the given code. If an event handler returns
 * true, the event is considered handled and is not passed on to any more listeners.
 * Callbacks run on the firing goroutine without the registry lock held.
 */
func EventFire(code SystemEventCode, sender interface{}, context EventContext) bool {
	if eventState == nil {
		return false
	}
	eventState.mu.RLock()
	events := make([]*registeredEvent, len(eventState.registered[code]))
	copy(events, eventState.registered[code])
	eventState.mu.RUnlock()

	for _, e := range events {
		if e.callback(code, sender, e.listener, context) {
			return true
		}
	}
	return false
}
