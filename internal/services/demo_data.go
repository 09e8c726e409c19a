// internal/services/demo_data.go
package services

import (
	"fmt"
	"math"

	"github.com/Corphon/ScriptStudioMCP/internal/models"
)

// 演示模式的内置素材（无需API密钥）

type demoCut struct {
	duration int
	shotType string
	audio    string
	prompt   string
	promptKr string
}

type demoScene struct {
	title string
	cuts  []demoCut
}

var demoSceneData = []demoScene{
	{
		title: "도입: 역사의 시작",
		cuts: []demoCut{
			{6, "Wide Shot",
				`오늘 우리가 탐구할 주제는 바로 "%s"입니다. 수천 년 전, 인류는 어떻게 이 개념을 발견했을까요?`,
				"Cinematic wide shot of ancient civilization, dramatic sunrise, historical atmosphere, 16:9, photorealistic",
				"고대 문명의 시네마틱 와이드샷, 드라마틱한 일출, 역사적 분위기"},
			{7, "Medium Shot",
				"기원전 6세기, 고대 그리스의 학자들은 자연의 비밀을 수로 풀어내기 시작했습니다.",
				"Ancient Greek scholars studying scrolls in marble building, warm lighting, historical accurate, cinematic",
				"대리석 건물에서 두루마리를 연구하는 고대 그리스 학자들"},
			{5, "Close-up",
				"그들의 발견은 오늘날까지 우리 삶에 깊은 영향을 미치고 있습니다.",
				"Close-up of ancient mathematical instruments, compass and ruler on parchment, dramatic lighting",
				"고대 수학 도구 클로즈업, 양피지 위의 컴퍼스와 자"},
		},
	},
	{
		title: "전개: 발견의 순간",
		cuts: []demoCut{
			{8, "Medium Wide",
				"이 시대의 수학자들은 단순한 계산을 넘어, 우주의 질서를 이해하고자 했습니다. 그들에게 수학은 철학이자 예술이었습니다.",
				"Ancient mathematician at work with geometric shapes, candlelit study room, atmospheric, film quality",
				"기하학 도형과 함께 작업하는 고대 수학자, 촛불 서재"},
			{6, "Over Shoulder",
				"수많은 시행착오 끝에, 마침내 그들은 놀라운 패턴을 발견했습니다.",
				"Over shoulder shot of scholar writing mathematical formulas, parchment and ink, warm tones",
				"수학 공식을 쓰는 학자의 어깨 너머 샷"},
			{7, "Wide Shot",
				"이 발견은 당시 사회에 큰 반향을 일으켰고, 새로운 시대의 문을 열었습니다.",
				"Ancient academy with students and teachers, grand architecture, golden hour lighting, epic scale",
				"학생들과 교사들이 있는 고대 아카데미, 웅장한 건축"},
		},
	},
	{
		title: "결론: 현대로의 연결",
		cuts: []demoCut{
			{6, "Montage",
				"수천 년이 지난 오늘날, 이 수학적 원리는 우리 일상 곳곳에 숨어있습니다.",
				"Modern technology montage, smartphones, buildings, bridges, showing mathematical principles, sleek",
				"현대 기술 몽타주, 스마트폰, 건물, 다리, 수학적 원리"},
			{5, "Close-up",
				"고대의 지혜와 현대의 기술이 만나는 순간입니다.",
				"Split screen ancient and modern mathematics, visual comparison, artistic composition",
				"고대와 현대 수학의 분할 화면, 시각적 비교"},
			{6, "Wide Shot",
				`"%s"의 이야기는 여기서 끝나지 않습니다. 여러분도 이 위대한 발견의 여정에 함께하세요.`,
				"Inspirational ending shot, sunrise over modern city, hope and future, cinematic wide angle",
				"영감을 주는 엔딩 샷, 현대 도시 위의 일출"},
		},
	},
}

// DemoScript 按主题和目标时长生成演示大本
func DemoScript(topic string, runningTime int) *models.Script {
	minCuts := int(math.Ceil(float64(runningTime) / 10))
	maxCuts := runningTime / 4
	targetCuts := int(math.Round(float64(minCuts+maxCuts) / 2))

	var scenes []models.Scene
	cutCounter := 0
	totalDuration := 0

	for i, sceneData := range demoSceneData {
		var sceneCuts []models.Cut

		for _, cutData := range sceneData.cuts {
			if cutCounter >= targetCuts {
				break
			}

			duration := cutData.duration
			if totalDuration+duration > runningTime {
				duration = runningTime - totalDuration
				if duration < 3 {
					break
				}
			}

			cutCounter++
			totalDuration += duration

			audio := cutData.audio
			if containsFormatVerb(audio) {
				audio = fmt.Sprintf(audio, topic)
			}

			sceneCuts = append(sceneCuts, models.Cut{
				CutNumber: cutCounter,
				Duration:  duration,
				ShotType:  cutData.shotType,
				Audio:     audio,
				Prompt:    cutData.prompt,
				PromptKr:  cutData.promptKr,
			})

			if totalDuration >= runningTime {
				break
			}
		}

		if len(sceneCuts) > 0 {
			scenes = append(scenes, models.Scene{
				SceneNumber: i + 1,
				SceneTitle:  sceneData.title,
				Cuts:        sceneCuts,
			})
		}

		if totalDuration >= runningTime {
			break
		}
	}

	return &models.Script{
		Title:         "[데모] " + topic,
		TotalDuration: totalDuration,
		Scenes:        scenes,
	}
}

func containsFormatVerb(s string) bool {
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '%' && s[i+1] == 's' {
			return true
		}
	}
	return false
}

// DemoStyleAnalysis 演示用的风格分析文本
func DemoStyleAnalysis() string {
	return "Style: Cinematic photorealistic, warm golden lighting, dramatic shadows, film grain texture, historical atmosphere, 16:9 aspect ratio, high detail, epic composition"
}

// DemoAutoCast 演示用的自动选角结果
func DemoAutoCast() []models.AutoCastCharacter {
	return []models.AutoCastCharacter{
		{
			Name:        "고대 수학자",
			Background:  "기원전 6세기 그리스의 저명한 철학자이자 수학자",
			Description: "A 60-year-old ancient Greek philosopher with white beard, wearing white toga and sandals, wise expression, holding a scroll",
		},
		{
			Name:        "젊은 제자",
			Background:  "수학자의 가르침을 받는 청년 학자",
			Description: "A 25-year-old Greek student, short dark hair, wearing simple brown tunic, eager and curious expression, carrying writing tablets",
		},
	}
}
