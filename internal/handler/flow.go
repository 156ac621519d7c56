package handler

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/herald/internal/generator"
)

// DefaultFlowTTL bounds how long a flow waits for the user's next click.
const DefaultFlowTTL = 15 * time.Minute

func InstanceIDFromInteraction(i *discordgo.InteractionCreate) string {
	var customID string

	switch i.Type {
	case discordgo.InteractionMessageComponent:
		customID = i.MessageComponentData().CustomID
	case discordgo.InteractionModalSubmit:
		customID = i.ModalSubmitData().CustomID
	default:
		return ""
	}

	return InstanceIDFromCustomID(customID)
}

// InstanceIDFromCustomID extracts the flow instance from a "<component>:<instance>" custom ID.
func InstanceIDFromCustomID(customID string) string {
	_, instanceID, found := strings.Cut(customID, ":")
	if !found {
		return ""
	}
	return instanceID
}

// FlowContext carries state between the steps of one flow instance.
type FlowContext struct {
	InstanceID string
	UserID     string
	State      map[string]any
}

type NodeHandler func(DiscordSession, *discordgo.InteractionCreate, *FlowContext) error

type Node struct {
	ID      string
	Matcher func(*discordgo.InteractionCreate) bool
	Handler NodeHandler
	Next    []*Node
}

// Flow is a tree of interaction steps started by its Root.
type Flow struct {
	ID   string
	Root *Node
}

type flowSession struct {
	flow    *Flow
	node    *Node
	ctx     *FlowContext
	expires time.Time
}

// FlowManager routes interactions to flows. A flow whose root has follow-up
// steps keeps a session until it finishes or expires.
type FlowManager struct {
	flowsMu sync.RWMutex
	flows   []*Flow

	sessionsMu sync.Mutex
	sessions   map[string]*flowSession

	idGenerator generator.Generator[string]
	ttl         time.Duration
	now         func() time.Time
}

func NewFlowManager(idGenerator generator.Generator[string]) *FlowManager {
	if idGenerator == nil {
		idGenerator = &generator.UUIDV4Generator{}
	}
	return &FlowManager{
		sessions:    make(map[string]*flowSession),
		idGenerator: idGenerator,
		ttl:         DefaultFlowTTL,
		now:         time.Now,
	}
}

func (fm *FlowManager) RegisterFlow(flow *Flow) {
	fm.flowsMu.Lock()
	defer fm.flowsMu.Unlock()

	for _, existing := range fm.flows {
		if existing.ID == flow.ID {
			panic(fmt.Sprintf("flow %q already registered", flow.ID))
		}
	}
	fm.flows = append(fm.flows, flow)
}

// ActiveSessions counts flows waiting for a follow-up interaction.
func (fm *FlowManager) ActiveSessions() int {
	fm.sessionsMu.Lock()
	defer fm.sessionsMu.Unlock()
	fm.expireLocked()
	return len(fm.sessions)
}

func (fm *FlowManager) Router(s DiscordSession, i *discordgo.InteractionCreate) error {
	instanceID := InstanceIDFromInteraction(i)
	if instanceID == "" {
		return fm.initializeFlow(s, i)
	}

	fm.sessionsMu.Lock()
	fm.expireLocked()
	sess, inFlow := fm.sessions[instanceID]
	fm.sessionsMu.Unlock()
	if !inFlow {
		return ErrFlowExpired
	}
	return fm.advance(s, i, sess)
}

func (fm *FlowManager) expireLocked() {
	now := fm.now()
	for id, sess := range fm.sessions {
		if now.After(sess.expires) {
			delete(fm.sessions, id)
		}
	}
}

func (fm *FlowManager) finish(instanceID string) {
	fm.sessionsMu.Lock()
	delete(fm.sessions, instanceID)
	fm.sessionsMu.Unlock()
}

func (fm *FlowManager) advance(s DiscordSession, i *discordgo.InteractionCreate, sess *flowSession) error {
	if userID := interactionUserID(i); sess.ctx.UserID != "" && userID != sess.ctx.UserID {
		return &UserError{Message: "This menu belongs to someone else."}
	}

	var next *Node
	for _, n := range sess.node.Next {
		if n.Matcher(i) {
			next = n
			break
		}
	}
	if next == nil {
		return nil
	}

	sess.node = next
	sess.expires = fm.now().Add(fm.ttl)
	err := next.Handler(s, i, sess.ctx)
	if err != nil || len(next.Next) == 0 {
		fm.finish(sess.ctx.InstanceID)
	}
	return err
}

func (fm *FlowManager) initializeFlow(s DiscordSession, i *discordgo.InteractionCreate) error {
	fm.flowsMu.RLock()
	var f *Flow
	for _, flow := range fm.flows {
		if flow.Root.Matcher(i) {
			f = flow
			break
		}
	}
	fm.flowsMu.RUnlock()
	if f == nil {
		return nil
	}

	instanceID, err := fm.idGenerator.Next()
	if err != nil {
		return fmt.Errorf("failed to generate instance ID: %w", err)
	}

	ctx := &FlowContext{
		InstanceID: instanceID,
		UserID:     interactionUserID(i),
		State:      make(map[string]any),
	}
	if err := f.Root.Handler(s, i, ctx); err != nil {
		return err
	}

	if len(f.Root.Next) > 0 {
		fm.sessionsMu.Lock()
		fm.sessions[instanceID] = &flowSession{
			flow:    f,
			node:    f.Root,
			ctx:     ctx,
			expires: fm.now().Add(fm.ttl),
		}
		fm.sessionsMu.Unlock()
	}
	return nil
}

// interactionUserID is the invoking user, whether in a guild or a DM.
func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func commandMatcher(name, subCommand string) func(*discordgo.InteractionCreate) bool {
	return func(i *discordgo.InteractionCreate) bool {
		if i.Type != discordgo.InteractionApplicationCommand {
			return false
		}
		data := i.ApplicationCommandData()
		if data.Name != name {
			return false
		}
		if subCommand == "" {
			return true
		}
		return len(data.Options) > 0 && data.Options[0].Name == subCommand
	}
}

func componentMatcher(componentID string) func(*discordgo.InteractionCreate) bool {
	return func(i *discordgo.InteractionCreate) bool {
		if i.Type != discordgo.InteractionMessageComponent {
			return false
		}
		id, _, _ := strings.Cut(i.MessageComponentData().CustomID, ":")
		return id == componentID
	}
}
