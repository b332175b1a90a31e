package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"taskboard/internal/auth"
	"taskboard/internal/docstore"
	"taskboard/internal/model"
	"taskboard/internal/repository"
	"taskboard/internal/service"
	"taskboard/internal/taskview"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageName
	stageDeadline
	stageEditName
	stageEditDeadline
)

const (
	cbTogglePrefix = "toggle:"
	cbDeletePrefix = "delete:"
)

const (
	btnSkip          = "⏭️ Skip"
	btnConfirm       = "✅ Confirm"
	btnCancel        = "↩️ Cancel"
	btnCancelDialog  = "⏪ Stop"
	menuLabelNewTask = "➕ New task"
	menuLabelTasks   = "📋 Tasks"
	menuLabelDigest  = "⏰ Digest"
	menuLabelHelp    = "ℹ️ Help"
	maxListed        = 30
)

type conversationState struct {
	stage  conversationStage
	taskID string
	input  service.TaskInput
}

type confirmationRequest struct {
	taskID string
	name   string
}

// sender is the part of the Telegram API the bot writes through.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Deps are the shared collaborators every chat client is built from.
type Deps struct {
	Auth          *auth.Service
	Store         *docstore.Store
	Users         *repository.UserRepository
	Digest        *service.DigestService
	ClientOptions auth.ClientOptions
	DefaultQuery  taskview.Query
}

// chatClient is one Telegram user's view of the core: their session, live
// task set and list settings.
type chatClient struct {
	chatID  int64
	auth    *auth.Client
	ctrl    *service.SessionController
	tasks   *service.TaskService
	query   taskview.Query
	refresh bool
	listed  []string
}

// Bot aggregates Telegram API with services.
type Bot struct {
	api           sender
	poller        *tgbotapi.BotAPI
	deps          Deps
	clients       map[int64]*chatClient
	conversations map[int64]*conversationState
	confirmations map[int64]confirmationRequest
	mu            sync.Mutex
	now           func() time.Time
}

func New(token string, deps Deps) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("[info] bot authorized on account %s", api.Self.UserName)

	b := newBot(api, deps)
	b.poller = api
	return b, nil
}

func newBot(api sender, deps Deps) *Bot {
	if deps.DefaultQuery.SortKey == "" {
		deps.DefaultQuery = taskview.DefaultQuery()
	}
	return &Bot{
		api:           api,
		deps:          deps,
		clients:       make(map[int64]*chatClient),
		conversations: make(map[int64]*conversationState),
		confirmations: make(map[int64]confirmationRequest),
		now:           time.Now,
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	if b.poller == nil {
		return errors.New("bot has no telegram connection")
	}
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.poller.GetUpdatesChan(updateConfig)

	log.Println("[info] start polling updates")

	go func() {
		<-ctx.Done()
		b.poller.StopReceivingUpdates()
	}()

	for update := range updates {
		b.handleUpdate(ctx, update)
	}

	return nil
}

// Close releases every chat client's subscription.
func (b *Bot) Close() {
	b.mu.Lock()
	clients := b.clients
	b.clients = make(map[int64]*chatClient)
	b.mu.Unlock()

	for _, c := range clients {
		c.ctrl.Close()
		c.auth.Close()
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
			log.Printf("handle callback: %v", err)
		}
	case update.Message != nil:
		if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
			return
		}
		if err := b.handleMessage(ctx, update.Message); err != nil {
			log.Printf("handle message: %v", err)
		}
	}
}

// client returns the chat's client, signing in with the Telegram identity
// the first time a user shows up.
func (b *Bot) client(ctx context.Context, from *tgbotapi.User, chatID int64) *chatClient {
	b.mu.Lock()
	c, ok := b.clients[from.ID]
	if ok {
		b.mu.Unlock()
		return c
	}

	authClient := auth.NewClient(b.deps.Auth, b.deps.ClientOptions)
	env := service.Env{Auth: authClient, Store: b.deps.Store, Now: b.now}
	c = &chatClient{
		chatID: chatID,
		auth:   authClient,
		ctrl:   service.NewSessionController(env),
		tasks:  service.NewTaskService(env),
		query:  b.deps.DefaultQuery,
	}
	b.clients[from.ID] = c
	b.mu.Unlock()

	userID := from.ID
	c.ctrl.OnChange(func(state service.State) {
		b.onStateChange(userID, state)
	})
	c.ctrl.Start()

	if _, err := authClient.SignInFederated(ctx, telegramIdentity(from)); err != nil {
		log.Printf("[warn] federated sign-in user=%d: %v", from.ID, err)
		if sendErr := b.sendText(chatID, escape(auth.Message(err))); sendErr != nil {
			log.Printf("send: %v", sendErr)
		}
	}
	return c
}

func telegramIdentity(from *tgbotapi.User) *auth.Identity {
	name := strings.TrimSpace(from.FirstName + " " + from.LastName)
	if name == "" {
		name = from.UserName
	}
	return &auth.Identity{
		Provider:    auth.ProviderTelegram,
		Subject:     strconv.FormatInt(from.ID, 10),
		DisplayName: name,
	}
}

// onStateChange sends the list once the snapshot requested by a mutation
// or a sign-in has arrived.
func (b *Bot) onStateChange(userID int64, state service.State) {
	b.mu.Lock()
	c, ok := b.clients[userID]
	if !ok || !c.refresh || state.Loading {
		b.mu.Unlock()
		return
	}
	c.refresh = false
	b.mu.Unlock()

	if state.Err != nil {
		if err := b.sendText(c.chatID, "⚠️ Could not load your tasks, showing the last known list."); err != nil {
			log.Printf("send: %v", err)
		}
	}
	if err := b.sendTaskList(c, state); err != nil {
		log.Printf("send task list: %v", err)
	}
}

func (b *Bot) requestRefresh(c *chatClient) {
	b.mu.Lock()
	c.refresh = true
	b.mu.Unlock()
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if !msg.IsCommand() && isCancelDialogInput(msg.Text) {
		b.clearConversation(msg.From.ID)
		b.clearConfirmation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Input cancelled.")
	}

	if !msg.IsCommand() {
		if handled, err := b.handleMenuAlias(ctx, msg); handled {
			return err
		}
	}

	if msg.IsCommand() {
		log.Printf("[info] command from %d: /%s", msg.From.ID, msg.Command())
		return b.handleCommand(ctx, msg)
	}

	if pending, ok := b.getConfirmation(msg.From.ID); ok {
		return b.handleConfirmationResponse(ctx, msg, pending)
	}

	if b.hasConversation(msg.From.ID) {
		return b.handleConversation(ctx, msg)
	}

	return b.sendText(msg.Chat.ID, "I did not get that. Send /new to add a task or /help for the command list.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "new":
		return b.startNewTaskConversation(ctx, msg)
	case "tasks":
		return b.handleListTasks(ctx, msg)
	case "search":
		return b.handleSearch(ctx, msg)
	case "filter":
		return b.handleFilter(ctx, msg)
	case "sort":
		return b.handleSort(ctx, msg)
	case "edit":
		return b.startEditConversation(ctx, msg)
	case "done":
		return b.handleToggleByNumber(ctx, msg)
	case "delete":
		return b.handleDeleteByNumber(ctx, msg)
	case "digest":
		return b.handleDigest(ctx, msg)
	case "login":
		return b.handleLogin(ctx, msg)
	case "register":
		return b.handleRegister(ctx, msg)
	case "guest":
		return b.handleGuest(ctx, msg)
	case "logout":
		return b.handleLogout(ctx, msg)
	case "token":
		return b.handleToken(ctx, msg)
	case "resume":
		return b.handleResume(ctx, msg)
	case "cancel":
		b.clearConversation(msg.From.ID)
		b.clearConfirmation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Input cancelled.")
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	c := b.client(ctx, msg.From, msg.Chat.ID)

	name := strings.TrimSpace(msg.From.FirstName)
	if session := c.auth.Current(); session != nil {
		name = session.Label()
	}
	if name == "" {
		name = "there"
	}

	text := fmt.Sprintf("👋 Hi, %s!\n<b>I keep your to-do list.</b>\n\n%s", escape(name), helpText)
	return b.sendText(msg.Chat.ID, text)
}

const helpText = "Commands:\n" +
	"• /new — add a task\n" +
	"• /tasks — show your list\n" +
	"• /search &lt;text&gt; — only names containing text (empty clears)\n" +
	"• /filter all|pending|done|overdue\n" +
	"• /sort createdAt|deadline|name|completedAt|status [asc|desc]\n" +
	"• /edit &lt;n&gt; — change name or deadline of item n\n" +
	"• /done &lt;n&gt; — toggle item n\n" +
	"• /delete &lt;n&gt; — delete item n\n" +
	"• /digest — overdue and upcoming tasks\n" +
	"• /login &lt;email&gt; &lt;password&gt; · /register &lt;email&gt; &lt;password&gt; [name]\n" +
	"• /guest · /logout · /token · /resume &lt;token&gt;\n" +
	"• /cancel — stop the current input"

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	return b.sendText(msg.Chat.ID, "ℹ️ <b>Help</b>\n"+helpText)
}

func (b *Bot) startNewTaskConversation(ctx context.Context, msg *tgbotapi.Message) error {
	c := b.client(ctx, msg.From, msg.Chat.ID)
	if c.auth.Current() == nil {
		return b.sendText(msg.Chat.ID, "Sign in first: /login, /register or /guest.")
	}

	if name := strings.TrimSpace(msg.CommandArguments()); name != "" {
		b.setConversation(msg.From.ID, &conversationState{stage: stageDeadline, input: service.TaskInput{Name: name}})
		return b.sendWithReplyMarkup(msg.Chat.ID, deadlinePrompt, skipKeyboard())
	}

	log.Printf("[info] start new task conversation user=%d", msg.From.ID)
	b.setConversation(msg.From.ID, &conversationState{stage: stageName})
	return b.sendWithReplyMarkup(msg.Chat.ID, "🆕 New task.\n<b>Step 1:</b> what should it be called?", cancelKeyboard())
}

const deadlinePrompt = "⏰ Deadline as <code>2025-11-30 18:00</code> or <code>2025-11-30</code> (or Skip)."

func (b *Bot) startEditConversation(ctx context.Context, msg *tgbotapi.Message) error {
	c := b.client(ctx, msg.From, msg.Chat.ID)
	task, err := b.taskByNumber(c, msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, escape(err.Error()))
	}

	b.setConversation(msg.From.ID, &conversationState{
		stage:  stageEditName,
		taskID: task.ID,
		input:  service.TaskInput{Name: task.Name, Deadline: task.Deadline},
	})
	text := fmt.Sprintf("✏️ Editing «%s».\nSend a new name (or Skip to keep it).", escape(task.Name))
	return b.sendWithReplyMarkup(msg.Chat.ID, text, skipKeyboard())
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	state := b.getConversation(msg.From.ID)
	if state == nil {
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	switch state.stage {
	case stageName:
		if text == "" {
			return b.sendWithReplyMarkup(msg.Chat.ID, "The name cannot be empty. Try again.", cancelKeyboard())
		}
		state.input.Name = text
		state.stage = stageDeadline
		return b.sendWithReplyMarkup(msg.Chat.ID, deadlinePrompt, skipKeyboard())
	case stageDeadline:
		if !isSkipInput(text) {
			deadline, ok := parseDeadlineInput(text)
			if !ok {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Cannot read that date. "+deadlinePrompt, skipKeyboard())
			}
			state.input.Deadline = &deadline
		}
		b.clearConversation(msg.From.ID)
		return b.finishTaskCreation(ctx, msg, state.input)
	case stageEditName:
		if !isSkipInput(text) {
			state.input.Name = text
		}
		state.stage = stageEditDeadline
		return b.sendWithReplyMarkup(msg.Chat.ID, deadlinePrompt+"\nSend <code>-</code> to remove the deadline.", skipKeyboard())
	case stageEditDeadline:
		switch {
		case text == "-":
			state.input.Deadline = nil
		case isSkipInput(text):
		default:
			deadline, ok := parseDeadlineInput(text)
			if !ok {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Cannot read that date. "+deadlinePrompt, skipKeyboard())
			}
			state.input.Deadline = &deadline
		}
		b.clearConversation(msg.From.ID)
		return b.finishTaskEdit(ctx, msg, state)
	default:
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Input reset. Start again with /new.")
	}
}

func (b *Bot) finishTaskCreation(ctx context.Context, msg *tgbotapi.Message, input service.TaskInput) error {
	c := b.client(ctx, msg.From, msg.Chat.ID)
	b.requestRefresh(c)
	if _, err := c.tasks.Create(ctx, input); err != nil {
		b.clearRefresh(c)
		return b.sendTextWithRemove(msg.Chat.ID, mutationFailure(err))
	}
	return b.sendTextWithRemove(msg.Chat.ID, fmt.Sprintf("✅ Saved «%s».", escape(strings.TrimSpace(input.Name))))
}

func (b *Bot) finishTaskEdit(ctx context.Context, msg *tgbotapi.Message, state *conversationState) error {
	c := b.client(ctx, msg.From, msg.Chat.ID)
	b.requestRefresh(c)
	if err := c.tasks.Update(ctx, state.taskID, state.input); err != nil {
		b.clearRefresh(c)
		return b.sendTextWithRemove(msg.Chat.ID, mutationFailure(err))
	}
	return b.sendTextWithRemove(msg.Chat.ID, fmt.Sprintf("✏️ Updated «%s».", escape(strings.TrimSpace(state.input.Name))))
}

func (b *Bot) handleListTasks(ctx context.Context, msg *tgbotapi.Message) error {
	c := b.client(ctx, msg.From, msg.Chat.ID)
	state := c.ctrl.State()
	if state.Loading {
		b.requestRefresh(c)
		return b.sendText(msg.Chat.ID, "⏳ Loading your tasks…")
	}
	return b.sendTaskList(c, state)
}

func (b *Bot) handleSearch(ctx context.Context, msg *tgbotapi.Message) error {
	c := b.client(ctx, msg.From, msg.Chat.ID)
	b.mu.Lock()
	c.query.Search = strings.TrimSpace(msg.CommandArguments())
	b.mu.Unlock()
	return b.sendTaskList(c, c.ctrl.State())
}

func (b *Bot) handleFilter(ctx context.Context, msg *tgbotapi.Message) error {
	c := b.client(ctx, msg.From, msg.Chat.ID)
	filter, err := taskview.ParseFilter(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Use /filter all, pending, done or overdue.")
	}
	b.mu.Lock()
	c.query.Filter = filter
	b.mu.Unlock()
	return b.sendTaskList(c, c.ctrl.State())
}

func (b *Bot) handleSort(ctx context.Context, msg *tgbotapi.Message) error {
	c := b.client(ctx, msg.From, msg.Chat.ID)
	args := strings.Fields(msg.CommandArguments())
	if len(args) == 0 || len(args) > 2 {
		return b.sendText(msg.Chat.ID, "Use /sort createdAt|deadline|name|completedAt|status [asc|desc].")
	}
	key, err := taskview.ParseSortKey(args[0])
	if err != nil {
		return b.sendText(msg.Chat.ID, escape(err.Error()))
	}
	b.mu.Lock()
	dir := c.query.Direction
	b.mu.Unlock()
	if len(args) == 2 {
		if dir, err = taskview.ParseDirection(args[1]); err != nil {
			return b.sendText(msg.Chat.ID, escape(err.Error()))
		}
	}
	b.mu.Lock()
	c.query.SortKey = key
	c.query.Direction = dir
	b.mu.Unlock()
	return b.sendTaskList(c, c.ctrl.State())
}

func (b *Bot) handleToggleByNumber(ctx context.Context, msg *tgbotapi.Message) error {
	c := b.client(ctx, msg.From, msg.Chat.ID)
	task, err := b.taskByNumber(c, msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, escape(err.Error()))
	}
	return b.toggleTask(ctx, c, msg.Chat.ID, *task)
}

func (b *Bot) handleDeleteByNumber(ctx context.Context, msg *tgbotapi.Message) error {
	c := b.client(ctx, msg.From, msg.Chat.ID)
	task, err := b.taskByNumber(c, msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, escape(err.Error()))
	}
	return b.askDeleteConfirmation(msg.Chat.ID, msg.From.ID, *task)
}

func (b *Bot) toggleTask(ctx context.Context, c *chatClient, chatID int64, task model.Task) error {
	b.requestRefresh(c)
	next, err := c.tasks.ToggleStatus(ctx, task)
	if err != nil {
		b.clearRefresh(c)
		return b.sendText(chatID, mutationFailure(err))
	}
	if next == model.StatusDone {
		return b.sendText(chatID, fmt.Sprintf("✅ «%s» done.", escape(task.Name)))
	}
	return b.sendText(chatID, fmt.Sprintf("↩️ «%s» is pending again.", escape(task.Name)))
}

func (b *Bot) askDeleteConfirmation(chatID, userID int64, task model.Task) error {
	b.setConfirmation(userID, confirmationRequest{taskID: task.ID, name: task.Name})
	text := fmt.Sprintf("Delete «%s»? This cannot be undone.", escape(task.Name))
	return b.sendWithReplyMarkup(chatID, text, confirmKeyboard())
}

func (b *Bot) handleConfirmationResponse(ctx context.Context, msg *tgbotapi.Message, req confirmationRequest) error {
	text := strings.TrimSpace(msg.Text)
	switch {
	case isConfirmInput(text):
		b.clearConfirmation(msg.From.ID)
		c := b.client(ctx, msg.From, msg.Chat.ID)
		b.requestRefresh(c)
		if err := c.tasks.Delete(ctx, req.taskID, service.Confirmed); err != nil {
			b.clearRefresh(c)
			return b.sendTextWithRemove(msg.Chat.ID, mutationFailure(err))
		}
		return b.sendTextWithRemove(msg.Chat.ID, fmt.Sprintf("🗑 Deleted «%s».", escape(req.name)))
	case isCancelInput(text):
		b.clearConfirmation(msg.From.ID)
		return b.sendMenuPlaceholder(msg.Chat.ID)
	default:
		return b.sendWithReplyMarkup(msg.Chat.ID, "Confirm or cancel the delete.", confirmKeyboard())
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return nil
	}

	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Printf("callback ack: %v", err)
	}

	c := b.client(ctx, cb.From, cb.Message.Chat.ID)
	data := cb.Data
	switch {
	case strings.HasPrefix(data, cbTogglePrefix):
		task, ok := findTask(c.ctrl.State(), strings.TrimPrefix(data, cbTogglePrefix))
		if !ok {
			return b.sendText(cb.Message.Chat.ID, "That task no longer exists.")
		}
		log.Printf("[info] callback toggle user=%d task=%s", cb.From.ID, task.ID)
		return b.toggleTask(ctx, c, cb.Message.Chat.ID, task)
	case strings.HasPrefix(data, cbDeletePrefix):
		task, ok := findTask(c.ctrl.State(), strings.TrimPrefix(data, cbDeletePrefix))
		if !ok {
			return b.sendText(cb.Message.Chat.ID, "That task no longer exists.")
		}
		log.Printf("[info] callback delete request user=%d task=%s", cb.From.ID, task.ID)
		return b.askDeleteConfirmation(cb.Message.Chat.ID, cb.From.ID, task)
	default:
		return nil
	}
}

func (b *Bot) handleDigest(ctx context.Context, msg *tgbotapi.Message) error {
	c := b.client(ctx, msg.From, msg.Chat.ID)
	session := c.auth.Current()
	if session == nil {
		return b.sendText(msg.Chat.ID, "Sign in first: /login, /register or /guest.")
	}
	now := b.now()
	digest, err := b.deps.Digest.Build(ctx, session.OwnerID, now)
	if err != nil {
		return b.sendText(msg.Chat.ID, "Could not build the digest. Please try again.")
	}
	return b.sendText(msg.Chat.ID, formatDigest(digest, now))
}

// SendDigests sends a reminder to every Telegram user with overdue or
// upcoming tasks.
func (b *Bot) SendDigests(ctx context.Context) error {
	owners, err := b.deps.Store.Owners(ctx)
	if err != nil {
		return err
	}
	users, err := b.deps.Users.ListWithTelegram(ctx)
	if err != nil {
		return err
	}
	byID := make(map[string]model.User, len(users))
	for _, user := range users {
		byID[user.ID] = user
	}

	now := b.now()
	for _, owner := range owners {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		user, ok := byID[owner]
		if !ok {
			continue
		}
		digest, err := b.deps.Digest.Build(ctx, owner, now)
		if err != nil {
			log.Printf("build digest for user %s: %v", owner, err)
			continue
		}
		if digest.Empty() {
			continue
		}
		if err := b.sendText(*user.TelegramID, formatDigest(digest, now)); err != nil {
			log.Printf("send digest to %d: %v", *user.TelegramID, err)
		}
	}
	return nil
}

func (b *Bot) handleLogin(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.Fields(msg.CommandArguments())
	if len(args) != 2 {
		return b.sendText(msg.Chat.ID, "Use /login &lt;email&gt; &lt;password&gt;.")
	}
	b.forgetMessage(msg)
	c := b.client(ctx, msg.From, msg.Chat.ID)
	b.requestRefresh(c)
	session, err := c.auth.SignIn(ctx, args[0], args[1])
	return b.afterSignIn(c, msg.Chat.ID, session, err)
}

func (b *Bot) handleRegister(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.Fields(msg.CommandArguments())
	if len(args) < 2 {
		return b.sendText(msg.Chat.ID, "Use /register &lt;email&gt; &lt;password&gt; [name].")
	}
	b.forgetMessage(msg)
	c := b.client(ctx, msg.From, msg.Chat.ID)
	b.requestRefresh(c)
	session, err := c.auth.SignUp(ctx, args[0], args[1], strings.Join(args[2:], " "))
	return b.afterSignIn(c, msg.Chat.ID, session, err)
}

// forgetMessage removes a message carrying credentials from the chat.
func (b *Bot) forgetMessage(msg *tgbotapi.Message) {
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(msg.Chat.ID, msg.MessageID)); err != nil {
		log.Printf("[warn] delete message %d in chat %d: %v", msg.MessageID, msg.Chat.ID, err)
	}
}

func (b *Bot) handleGuest(ctx context.Context, msg *tgbotapi.Message) error {
	c := b.client(ctx, msg.From, msg.Chat.ID)
	b.requestRefresh(c)
	session, err := c.auth.SignInAnonymous(ctx)
	return b.afterSignIn(c, msg.Chat.ID, session, err)
}

func (b *Bot) handleResume(ctx context.Context, msg *tgbotapi.Message) error {
	token := strings.TrimSpace(msg.CommandArguments())
	if token == "" {
		return b.sendText(msg.Chat.ID, "Use /resume &lt;token&gt;.")
	}
	c := b.client(ctx, msg.From, msg.Chat.ID)
	b.requestRefresh(c)
	session, err := c.auth.SignInWithToken(ctx, token)
	return b.afterSignIn(c, msg.Chat.ID, session, err)
}

func (b *Bot) afterSignIn(c *chatClient, chatID int64, session *model.Session, err error) error {
	if err != nil {
		b.clearRefresh(c)
		return b.sendText(chatID, "🔒 "+escape(auth.Message(err)))
	}
	return b.sendText(chatID, fmt.Sprintf("🔓 Signed in as %s.", escape(session.Label())))
}

func (b *Bot) handleLogout(ctx context.Context, msg *tgbotapi.Message) error {
	c := b.client(ctx, msg.From, msg.Chat.ID)
	c.auth.SignOut()
	b.clearConversation(msg.From.ID)
	b.clearConfirmation(msg.From.ID)
	return b.sendText(msg.Chat.ID, "👋 Signed out. Use /start, /login or /guest to continue.")
}

func (b *Bot) handleToken(ctx context.Context, msg *tgbotapi.Message) error {
	c := b.client(ctx, msg.From, msg.Chat.ID)
	token, err := c.auth.Token()
	if err != nil {
		return b.sendText(msg.Chat.ID, "🔒 "+escape(auth.Message(err)))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🔑 Resume token:\n<code>%s</code>", escape(token)))
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	text := strings.TrimSpace(strings.ToLower(msg.Text))
	switch text {
	case strings.ToLower(menuLabelNewTask):
		return true, b.startNewTaskConversation(ctx, msg)
	case strings.ToLower(menuLabelTasks):
		return true, b.handleListTasks(ctx, msg)
	case strings.ToLower(menuLabelDigest):
		return true, b.handleDigest(ctx, msg)
	case strings.ToLower(menuLabelHelp):
		return true, b.handleHelp(msg)
	default:
		return false, nil
	}
}

func (b *Bot) sendTaskList(c *chatClient, state service.State) error {
	b.mu.Lock()
	q := c.query
	b.mu.Unlock()

	if state.Session == nil {
		return b.sendText(c.chatID, "You are signed out. Use /login, /register or /guest.")
	}

	now := b.now()
	views := taskview.Apply(state.Tasks, q, now)
	text, buttons := renderList(views, taskview.Count(taskview.Apply(state.Tasks, taskview.DefaultQuery(), now)), q, now)

	ids := make([]string, 0, len(views))
	for _, v := range views {
		ids = append(ids, v.ID)
	}
	b.mu.Lock()
	c.listed = ids
	b.mu.Unlock()

	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if len(buttons) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	}
	_, err := b.api.Send(msg)
	return err
}

// replyError carries text meant for the chat as is.
type replyError string

func (e replyError) Error() string { return string(e) }

// taskByNumber resolves the 1-based position shown in the last list.
func (b *Bot) taskByNumber(c *chatClient, arg string) (*model.Task, error) {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || n < 1 {
		return nil, replyError("Give the item number from /tasks, e.g. 2.")
	}
	b.mu.Lock()
	listed := c.listed
	b.mu.Unlock()
	if n > len(listed) {
		return nil, replyError("No such item in the last list. Send /tasks to refresh it.")
	}
	task, ok := findTask(c.ctrl.State(), listed[n-1])
	if !ok {
		return nil, replyError("That task no longer exists.")
	}
	return &task, nil
}

func (b *Bot) clearRefresh(c *chatClient) {
	b.mu.Lock()
	c.refresh = false
	b.mu.Unlock()
}

func findTask(state service.State, id string) (model.Task, bool) {
	for _, task := range state.Tasks {
		if task.ID == id {
			return task, true
		}
	}
	return model.Task{}, false
}

// mutationFailure maps a task service error to a chat reply.
func mutationFailure(err error) string {
	switch {
	case errors.Is(err, service.ErrNoSession):
		return "Sign in first: /login, /register or /guest."
	case errors.Is(err, service.ErrEmptyName):
		return "The name cannot be empty."
	default:
		return "⚠️ " + service.StoreFailureNotice
	}
}

func parseDeadlineInput(text string) (time.Time, bool) {
	return model.ParseDeadline(strings.Replace(strings.TrimSpace(text), " ", "T", 1))
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendTextWithRemove(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	if _, err := b.api.Send(msg); err != nil {
		return err
	}
	return b.sendMenuPlaceholder(chatID)
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendMenuPlaceholder(chatID int64) error {
	msg := tgbotapi.NewMessage(chatID, "🔹 Main menu")
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) getConfirmation(userID int64) (confirmationRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	req, ok := b.confirmations[userID]
	return req, ok
}

func (b *Bot) setConfirmation(userID int64, req confirmationRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.confirmations[userID] = req
}

func (b *Bot) clearConfirmation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.confirmations, userID)
}

func (b *Bot) setConversation(userID int64, state *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[userID] = state
}

func (b *Bot) getConversation(userID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[userID]
}

func (b *Bot) hasConversation(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.conversations[userID]
	return ok
}

func (b *Bot) clearConversation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, userID)
}

func confirmKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnConfirm),
			tgbotapi.NewKeyboardButton(btnCancel),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelNewTask),
			tgbotapi.NewKeyboardButton(menuLabelTasks),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelDigest),
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func skipKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSkip),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func isSkipInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnSkip) || value == "skip"
}

func isConfirmInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnConfirm) || value == "confirm" || value == "yes"
}

func isCancelInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancel) || value == "cancel" || value == "no"
}

func isCancelDialogInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancelDialog) || value == "stop"
}
