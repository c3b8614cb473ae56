// Package responder реализует генератор ответов на основе ключевых слов.
// Генератор — чистая функция без состояния: одно и то же сообщение
// всегда даёт один и тот же ответ.
package responder

import (
	"hash/fnv"
	"strings"
)

// Generator описывает контракт генерации ответа на входящий текст.
type Generator interface {
	Generate(text string) string
}

// Responder подбирает шаблонный ответ по подстрокам во входящем сообщении.
type Responder struct {
	appName string
}

// New создаёт генератор ответов с указанным именем ассистента.
func New(appName string) *Responder {
	return &Responder{appName: appName}
}

var greetings = []string{
	"Hello! I'm %s, your intelligent assistant. How can I help you today?",
	"Hi there! Welcome to %s. What would you like to explore?",
	"Namaste! I'm here to assist you with any questions or tasks.",
	"Greetings! I'm ready to help you with information, creative tasks, and much more!",
}

type rule struct {
	keywords []string
	reply    string
}

var rules = []rule{
	{
		keywords: []string{"help", "what can you do", "features"},
		reply: "I can help you with answering questions, creative writing, " +
			"research, coding assistance, educational support and problem-solving. " +
			"Just ask me anything! Each message earns you a chat credit.",
	},
	{
		keywords: []string{"balance", "money", "earnings", "wallet"},
		reply: "You earn a fixed credit for every message you send, a welcome " +
			"bonus when you join, and a referral bonus for every invited friend. " +
			"Keep chatting to earn more!",
	},
	{
		keywords: []string{"code", "programming", "python", "javascript"},
		reply: "I can help with programming: web development, databases, " +
			"debugging and optimization. What specific coding challenge can I " +
			"help you with?",
	},
	{
		keywords: []string{"calculate", "math", "solve", "equation"},
		reply: "I can help with mathematics: arithmetic, statistics, geometry, " +
			"algebra and data analysis. What problem would you like me to solve?",
	},
	{
		keywords: []string{"write", "story", "poem", "creative"},
		reply: "I love creative projects: stories, poetry, articles and " +
			"brainstorming. What shall we work on together?",
	},
	{
		keywords: []string{"business", "advice", "strategy", "marketing"},
		reply: "I can provide business insights: strategy, marketing ideas, " +
			"financial planning and goal setting. What challenge can I help you tackle?",
	},
	{
		keywords: []string{"weather"},
		reply: "I can't access real-time weather data, but I can discuss " +
			"weather patterns, climate and meteorology. What interests you?",
	},
	{
		keywords: []string{"food", "recipe"},
		reply: "Food and cooking are wonderful topics! I can help with recipes, " +
			"cooking techniques and nutrition advice. What shall we explore?",
	},
	{
		keywords: []string{"travel"},
		reply: "Travel is amazing! I can help with planning, destination " +
			"recommendations and cultural insights. Where would you like to explore?",
	},
	{
		keywords: []string{"health"},
		reply: "I can provide general health and wellness information. Remember " +
			"to consult healthcare professionals for medical concerns. What health " +
			"topic interests you?",
	},
}

// Generate возвращает ответ на входящее сообщение. Поиск идёт по
// подстрокам в нижнем регистре; первое совпавшее правило выигрывает.
func (r *Responder) Generate(text string) string {
	lower := strings.ToLower(text)

	for _, w := range []string{"hello", "hi", "hey", "namaste", "start"} {
		if strings.Contains(lower, w) {
			tpl := greetings[pick(text, len(greetings))]
			return strings.Replace(tpl, "%s", r.appName, 1)
		}
	}

	for _, rl := range rules {
		for _, w := range rl.keywords {
			if strings.Contains(lower, w) {
				return rl.reply
			}
		}
	}

	return "Thank you for your message! I'm " + r.appName + ", and I'm here to help. " +
		"Could you tell me more about what you're looking for? I can assist with " +
		"information, problem-solving, creative projects, learning and technical help."
}

// pick детерминированно выбирает вариант шаблона по хэшу сообщения.
func pick(text string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(text))
	return int(h.Sum32() % uint32(n))
}
