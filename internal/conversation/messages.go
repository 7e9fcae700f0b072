package conversation

const (
	msgRegister = `Merhaba. Kayıt olmak icin lütfen
Adınız ve Soyadınız, Telefon Numarasınız, Kan Grubunuz ve Acil Durumda Ulaşılması için bir yakınınızın Ad Soyad ve Telefon numarasını giriniz.

Örnek:
Ali Çetin, 05551234567, ARH+, Tuna Bilge 05551234567`

	msgHelp = "/basla yazarak etkilesime gecebilirsiniz.\n" +
		"Yonergeleri izleyerek bilgileri bize hizlica ulastirabilirsiniz.\n" +
		"Bir sorun veya eksiklik yasanirsa /temizle yazarak yeniden baslayabilirsiniz.\n"

	msgStale   = "Bu adim geride kaldi."
	msgCleared = "Etkilesim temizlendi. Yeniden baslamak icin /basla yaziniz."

	msgMissingPhotoText = "Bilgiler kaydedildi. Resim gonderebilir ve/veya mesaj yazabilirsiniz."
	msgMissingPhoto     = "Bilgiler kaydedildi. Bildirimi tamamlamak icin bir resim gonderiniz."
	msgMissingLocation  = "Resminiz alindi. Lutfen konum isaretleyip gonderin."
	msgMissingEvidence  = "Mesajiniz alindi. Lutfen konum isaretleyip gonderin ve bir resim ekleyin."
	msgAskText          = "Bilgiler kaydedildi. Bildirimi tamamlamak icin gordugunuzu kisaca yaziniz."

	msgFailure = "Bilgileriniz kaydedilemedi. Lutfen tekrar gonderin veya /temizle yazarak yeniden baslayin."

	msgConfirmed = "Bildiriminiz alindi!\n" +
		"Etkilesiminiz icin tesekkurler. Yangin tehlikesi durumunda bana yazmayi unutmayin! Yeniden baslatmak icin /basla yaziniz."
)

// minTextRunes is the length a message must exceed to count as report text or
// registration info.
const minTextRunes = 5
